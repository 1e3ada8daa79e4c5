package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"igdmbot/internal/app"
	"igdmbot/pkg/ui"
	"igdmbot/pkg/ui/tui"
)

var (
	useTUI        bool
	checkInterval time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll recent posts and answer matching comments",
	Long: `Run the polling daemon. Every check interval the bot fetches your most recent
posts, selects the monitored ones and processes their new comments.

Only one instance may run per data directory.`,
	Example: `  # Poll every five minutes (default)
  igdmbot run

  # Poll every two minutes with the live dashboard
  igdmbot run --interval 2m --tui`,
	Args: cobra.NoArgs,
	RunE: runPolling,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show the live terminal dashboard")
	runCmd.Flags().DurationVar(&checkInterval, "interval", 0, "time between polling cycles (default from config)")
}

func runPolling(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, cfg, err := openApp(ctx, map[string]interface{}{"interval": checkInterval}, useTUI)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Lock(); err != nil {
		return err
	}

	if !useTUI {
		ui.PrintInfo("Account", cfg.Instagram.Username)
		ui.PrintInfo("Gateway", a.Mode())
		ui.PrintInfo("Interval", cfg.Monitoring.CheckInterval.String())
		ui.PrintHighlight("[MONITORING STARTED]")
		err := a.RunPolling(ctx)
		ui.PrintSuccess("Monitoring stopped")
		return err
	}

	return runWithDashboard(ctx, a, cfg.Instagram.Username)
}

// runWithDashboard polls in the background while the dashboard owns the
// terminal. Quitting the dashboard stops polling.
func runWithDashboard(ctx context.Context, a *app.App, account string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dash := tui.NewDashboard(account, a.Mode())
	a.AttachDashboard(dash)
	defer a.AttachDashboard(nil)

	pollDone := make(chan error, 1)
	go func() {
		pollDone <- a.RunPolling(ctx)
	}()

	dashDone := make(chan error, 1)
	go func() {
		dashDone <- dash.Run()
	}()

	select {
	case err := <-dashDone:
		cancel()
		<-pollDone
		if err != nil {
			return fmt.Errorf("dashboard failed: %w", err)
		}
		return nil
	case err := <-pollDone:
		dash.Stop()
		<-dashDone
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
