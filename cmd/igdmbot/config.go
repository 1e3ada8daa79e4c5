package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igdmbot/pkg/config"
	"igdmbot/pkg/keywords"
	"igdmbot/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage igdmbot configuration.

Configuration is merged from (highest priority first):
  - Command line flags
  - Environment variables (IGDMBOT_*, .env files included)
  - Runtime settings changed through 'config keywords|strategy|monitor' or the admin API
  - Configuration file
  - Default values`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default",
	Long: `Write a configuration file containing every option with its default value.

The file is created as 'igdmbot.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after merging every source. Secrets are masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// configKeywordsCmd represents the config keywords command
var configKeywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Replace keyword lists",
	Long: `Replace one or more keyword lists. Lists are comma separated; keywords are
trimmed, lower-cased and de-duplicated. The general list must not be empty.`,
	Example: `  igdmbot config keywords --general "price,link,info" --consent "dm me,send link"`,
	Args:    cobra.NoArgs,
	RunE:    runConfigKeywords,
}

// configStrategyCmd represents the config strategy command
var configStrategyCmd = &cobra.Command{
	Use:   "strategy <consent_required|any_keyword>",
	Short: "Set the keyword strategy",
	Long: `Set how matched comments are answered:

  consent_required  direct message only when the comment asks for one (consent
                    keyword); interest keywords get a public encouragement reply
  any_keyword       direct message for any general keyword match`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(config.StrategyConsentRequired), string(config.StrategyAnyKeyword)},
	RunE:      runConfigStrategy,
}

// configMonitorCmd represents the config monitor command
var configMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Change which posts are monitored",
	Example: `  # Monitor every recent post, checked every two minutes
  igdmbot config monitor --all --interval 2m

  # Monitor two specific posts
  igdmbot config monitor --all=false --post-ids 1789,1790`,
	Args: cobra.NoArgs,
	RunE: runConfigMonitor,
}

var (
	forceInit bool

	kwGeneral  string
	kwConsent  string
	kwInterest string

	monAll          bool
	monPostIDs      string
	monHashtags     string
	monCaptionWords string
	monMaxAge       int
	monLinksOnly    bool
	monMaxPosts     int
	monInterval     time.Duration
)

var monitorFlags = []string{"all", "post-ids", "hashtags", "caption-words", "max-age", "links-only", "max-posts", "interval"}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configKeywordsCmd)
	configCmd.AddCommand(configStrategyCmd)
	configCmd.AddCommand(configMonitorCmd)

	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")

	configKeywordsCmd.Flags().StringVar(&kwGeneral, "general", "", "general keywords")
	configKeywordsCmd.Flags().StringVar(&kwConsent, "consent", "", "consent keywords")
	configKeywordsCmd.Flags().StringVar(&kwInterest, "interest", "", "interest keywords")

	f := configMonitorCmd.Flags()
	f.BoolVar(&monAll, "all", false, "monitor every recent post")
	f.StringVar(&monPostIDs, "post-ids", "", "comma separated post ids or short codes to monitor")
	f.StringVar(&monHashtags, "hashtags", "", "only posts whose caption has one of these hashtags")
	f.StringVar(&monCaptionWords, "caption-words", "", "only posts whose caption has one of these words")
	f.IntVar(&monMaxAge, "max-age", 0, "ignore posts older than this many days (0 disables)")
	f.BoolVar(&monLinksOnly, "links-only", false, "only posts whose caption carries a link")
	f.IntVar(&monMaxPosts, "max-posts", 0, "number of recent posts to fetch each cycle")
	f.DurationVar(&monInterval, "interval", 0, "time between polling cycles")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "igdmbot.yaml"
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set instagram.username and your keywords, messages and link")
	fmt.Println("2. Store a secret with 'igdmbot auth set session_id' (or password / access_token)")
	fmt.Println("3. Check it with 'igdmbot auth check', then start with 'igdmbot run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := cfg.Clone()
	for _, s := range []*string{
		&display.Instagram.Password,
		&display.Instagram.BackupCode,
		&display.Instagram.SessionID,
		&display.Instagram.AccessToken,
		&display.Webhook.VerifyToken,
		&display.Webhook.AppSecret,
		&display.Admin.Token,
	} {
		*s = mask(*s)
	}

	data, err := yaml.Marshal(display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// updateRuntime applies fn to the loaded configuration and persists the
// result to the runtime settings file.
func updateRuntime(fn func(*config.Config) error) (*config.Config, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	return config.NewHolder(cfg, true).Update(fn)
}

func runConfigKeywords(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("general") && !flags.Changed("consent") && !flags.Changed("interest") {
		return errors.New("nothing to change: pass --general, --consent or --interest")
	}

	next, err := updateRuntime(func(c *config.Config) error {
		if flags.Changed("general") {
			c.Keywords.General = keywords.Normalize(config.SplitList(kwGeneral))
		}
		if flags.Changed("consent") {
			c.Keywords.Consent = keywords.Normalize(config.SplitList(kwConsent))
		}
		if flags.Changed("interest") {
			c.Keywords.Interest = keywords.Normalize(config.SplitList(kwInterest))
		}
		return nil
	})
	if err != nil {
		return err
	}

	ui.PrintSuccess("Keywords updated")
	ui.PrintInfo("General", strings.Join(next.Keywords.General, ", "))
	ui.PrintInfo("Consent", strings.Join(next.Keywords.Consent, ", "))
	ui.PrintInfo("Interest", strings.Join(next.Keywords.Interest, ", "))
	return nil
}

func runConfigStrategy(cmd *cobra.Command, args []string) error {
	strategy := config.Strategy(strings.TrimSpace(args[0]))
	if !strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", args[0])
	}

	if _, err := updateRuntime(func(c *config.Config) error {
		c.Keywords.Strategy = strategy
		return nil
	}); err != nil {
		return err
	}
	ui.PrintSuccess("Strategy set to " + string(strategy))
	return nil
}

func runConfigMonitor(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !slices.ContainsFunc(monitorFlags, flags.Changed) {
		return errors.New("nothing to change: see 'igdmbot config monitor --help'")
	}

	next, err := updateRuntime(func(c *config.Config) error {
		m := &c.Monitoring
		if flags.Changed("all") {
			m.MonitorAllPosts = monAll
		}
		if flags.Changed("post-ids") {
			m.PostIDs = config.SplitList(monPostIDs)
		}
		if flags.Changed("hashtags") {
			m.RequiredHashtags = config.SplitList(monHashtags)
		}
		if flags.Changed("caption-words") {
			m.RequiredCaptionWords = config.SplitList(monCaptionWords)
		}
		if flags.Changed("max-age") {
			m.MaxPostAgeDays = monMaxAge
		}
		if flags.Changed("links-only") {
			m.OnlyPostsWithLinks = monLinksOnly
		}
		if flags.Changed("max-posts") {
			m.MaxPostsToCheck = monMaxPosts
		}
		if flags.Changed("interval") {
			m.CheckInterval = monInterval
		}
		return nil
	})
	if err != nil {
		return err
	}

	m := next.Monitoring
	ui.PrintSuccess("Monitoring updated")
	ui.PrintInfo("All posts", fmt.Sprintf("%t", m.MonitorAllPosts))
	ui.PrintInfo("Post ids", strings.Join(m.PostIDs, ", "))
	ui.PrintInfo("Max posts", fmt.Sprintf("%d", m.MaxPostsToCheck))
	ui.PrintInfo("Interval", m.CheckInterval.String())
	return nil
}
