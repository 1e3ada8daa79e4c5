package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"igdmbot/internal/app"
	"igdmbot/pkg/config"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFormat  string
	dataDir    string
	username   string
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igdmbot",
	Short: "Answer Instagram comments with direct messages",
	Long: `igdmbot watches the comments on your Instagram posts and, when a comment
contains one of your keywords, sends the commenter a direct message with your link.

Features:
  - Polling of recent posts or real-time webhook delivery
  - Consent-required or any-keyword messaging strategies
  - Public reply fallback when a direct message cannot be sent
  - Hourly direct message cap and adaptive backoff
  - Secrets in the system keychain, encrypted session cache
  - Admin JSON API and Prometheus metrics`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.DisableColor()
		}
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
		switch cmd.Name() {
		case "version", "help", "show", "status":
		default:
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if err != context.Canceled {
			ui.PrintError(err.Error())
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./igdmbot.yaml or ~/.config/igdmbot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the database, session and runtime settings")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "Instagram account to run as")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`igdmbot {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the global flags with extra command flags and loads
// the configuration from every source.
func loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := map[string]interface{}{
		"log-level":  logLevel,
		"log-format": logFormat,
		"data-dir":   dataDir,
		"username":   username,
	}
	for k, v := range extra {
		flags[k] = v
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the global logger. When toFile is set the output
// goes only to the configured log file, or igdmbot.log in the data
// directory, so it does not draw over the dashboard.
func setupLogging(cfg *config.Config, toFile bool) (logger.Logger, error) {
	if !toFile {
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return nil, err
		}
		return logger.GetLogger(), nil
	}

	logCfg := cfg.Logging
	logCfg.Format = "json"
	path := logCfg.File
	if path == "" {
		path = filepath.Join(cfg.Storage.DataDir, "igdmbot.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l, err := logger.NewWithWriter(&logCfg, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	logger.SetLogger(l)
	return l, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openApp loads the configuration and wires the bot.
func openApp(ctx context.Context, extra map[string]interface{}, logToFile bool) (*app.App, *config.Config, error) {
	cfg, err := loadConfig(extra)
	if err != nil {
		return nil, nil, err
	}
	log, err := setupLogging(cfg, logToFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.WithField("version", version).Debug("igdmbot starting")

	a, err := app.New(ctx, cfg, app.Options{
		Version:  version,
		Logger:   log,
		Notifier: ui.NewNotifier(),
		Persist:  true,
	})
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}
