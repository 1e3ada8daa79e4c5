package main

import (
	"github.com/spf13/cobra"

	"igdmbot/pkg/ui"
)

var (
	listenAddr   string
	servePoll    bool
	serveWebhook bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook, admin API and metrics",
	Long: `Start the HTTP server. It exposes:
  - the Instagram webhook (verification and comment delivery)
  - the admin JSON API under /api
  - Prometheus metrics on /metrics and a health check on /healthz

With --poll the polling loop also runs, so comments the webhook misses are
still picked up.`,
	Example: `  # Webhook and admin API on port 8080
  igdmbot serve --listen :8080

  # Also poll recent posts
  igdmbot serve --poll`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&servePoll, "poll", false, "run polling cycles alongside the webhook")
	serveCmd.Flags().BoolVar(&serveWebhook, "webhook", false, "enable or disable the webhook (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	extra := map[string]interface{}{"listen": listenAddr}
	if cmd.Flags().Changed("webhook") {
		extra["webhook"] = serveWebhook
	}
	a, cfg, err := openApp(ctx, extra, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Lock(); err != nil {
		return err
	}

	ui.PrintInfo("Account", cfg.Instagram.Username)
	ui.PrintInfo("Listening", cfg.Webhook.ListenAddr)
	if cfg.Webhook.Enabled {
		ui.PrintInfo("Webhook", cfg.Webhook.Path)
	}
	if servePoll {
		ui.PrintInfo("Polling", cfg.Monitoring.CheckInterval.String())
	}

	err = a.Serve(ctx, servePoll)
	ui.PrintSuccess("Server stopped")
	return err
}
