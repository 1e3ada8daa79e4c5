package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Strategy selects how matched comments are turned into actions.
type Strategy string

const (
	// StrategyConsentRequired only sends a direct message when the comment
	// contains an explicit consent phrase.
	StrategyConsentRequired Strategy = "consent_required"
	// StrategyAnyKeyword sends a direct message for any keyword match.
	StrategyAnyKeyword Strategy = "any_keyword"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyConsentRequired || s == StrategyAnyKeyword
}

// Gateway modes
const (
	ModeAuto  = "auto"
	ModeWeb   = "web"
	ModeGraph = "graph"
)

// Config holds all configuration options for the bot
type Config struct {
	// Instagram account and client settings
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Authenticator timing
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Keyword lists and strategy
	Keywords KeywordConfig `yaml:"keywords" json:"keywords"`

	// Outbound message templates
	Messages MessageConfig `yaml:"messages" json:"messages"`

	// Which posts are watched and how often
	Monitoring MonitoringConfig `yaml:"monitoring" json:"monitoring"`

	// Pacing of outbound calls
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Webhook ingress
	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`

	// Admin API
	Admin AdminConfig `yaml:"admin" json:"admin"`

	// Durable state locations
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds Instagram-specific configuration
type InstagramConfig struct {
	// Mode is "web", "graph" or "auto" (picked from the configured credential)
	Mode        string        `yaml:"mode" json:"mode"`
	Username    string        `yaml:"username" json:"username"`
	Password    string        `yaml:"password,omitempty" json:"-"`
	BackupCode  string        `yaml:"backup_code,omitempty" json:"-"`
	SessionID   string        `yaml:"session_id,omitempty" json:"-"`
	AccessToken string        `yaml:"access_token,omitempty" json:"-"`
	AccountID   string        `yaml:"account_id" json:"account_id"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	APIVersion  string        `yaml:"api_version" json:"api_version"`
	WebBaseURL  string        `yaml:"web_base_url" json:"web_base_url"`
	GraphURL    string        `yaml:"graph_url" json:"graph_url"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// AuthConfig controls the authenticator's time gates
type AuthConfig struct {
	// RetryDelay is the cooldown after a failed authentication
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// VerifyInterval is how long a verified session is trusted without a remote check
	VerifyInterval time.Duration `yaml:"verify_interval" json:"verify_interval"`
}

// KeywordConfig holds the keyword sets and the strategy that consumes them
type KeywordConfig struct {
	Strategy Strategy `yaml:"strategy" json:"strategy"`
	General  []string `yaml:"general" json:"general"`
	Consent  []string `yaml:"consent" json:"consent"`
	Interest []string `yaml:"interest" json:"interest"`
}

// MessageConfig holds outbound texts. Templates may use {link} and {username}.
type MessageConfig struct {
	DirectMessage        string `yaml:"direct_message" json:"direct_message"`
	DefaultLink          string `yaml:"default_link" json:"default_link"`
	EncouragementReply   string `yaml:"encouragement_reply" json:"encouragement_reply"`
	ConsentFallbackReply string `yaml:"consent_fallback_reply" json:"consent_fallback_reply"`
	EnableDirectDM       bool   `yaml:"enable_direct_dm" json:"enable_direct_dm"`
}

// MonitoringConfig selects watched posts and the polling cadence
type MonitoringConfig struct {
	MonitorAllPosts      bool          `yaml:"monitor_all_posts" json:"monitor_all_posts"`
	PostIDs              []string      `yaml:"post_ids" json:"post_ids"`
	RequiredHashtags     []string      `yaml:"required_hashtags" json:"required_hashtags"`
	RequiredCaptionWords []string      `yaml:"required_caption_words" json:"required_caption_words"`
	MaxPostAgeDays       int           `yaml:"max_post_age_days" json:"max_post_age_days"`
	OnlyPostsWithLinks   bool          `yaml:"only_posts_with_links" json:"only_posts_with_links"`
	MaxPostsToCheck      int           `yaml:"max_posts_to_check" json:"max_posts_to_check"`
	CheckInterval        time.Duration `yaml:"check_interval" json:"check_interval"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	MinDelay          time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	ItemMinDelay      time.Duration `yaml:"item_min_delay" json:"item_min_delay"`
	ItemMaxDelay      time.Duration `yaml:"item_max_delay" json:"item_max_delay"`
	Backoff           time.Duration `yaml:"backoff" json:"backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	MaxDMsPerHour     int           `yaml:"max_dms_per_hour" json:"max_dms_per_hour"`
}

// WebhookConfig holds webhook ingress settings
type WebhookConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	ListenAddr      string `yaml:"listen_addr" json:"listen_addr"`
	Path            string `yaml:"path" json:"path"`
	VerifyToken     string `yaml:"verify_token,omitempty" json:"-"`
	AppSecret       string `yaml:"app_secret,omitempty" json:"-"`
	Workers         int    `yaml:"workers" json:"workers"`
	QueueSize       int    `yaml:"queue_size" json:"queue_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" json:"rate_limit_per_min"`
}

// AdminConfig holds admin API settings
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Token   string `yaml:"token,omitempty" json:"-"`
}

// StorageConfig holds file locations for durable state
type StorageConfig struct {
	DataDir        string `yaml:"data_dir" json:"data_dir"`
	DatabasePath   string `yaml:"database_path" json:"database_path"`
	SessionFile    string `yaml:"session_file" json:"session_file"`
	RuntimeFile    string `yaml:"runtime_file" json:"runtime_file"`
	EncryptSession bool   `yaml:"encrypt_session" json:"encrypt_session"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	OnAuthFailure bool `yaml:"on_auth_failure" json:"on_auth_failure"`
	OnRateLimit   bool `yaml:"on_rate_limit" json:"on_rate_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Instagram: InstagramConfig{
			Mode:       ModeAuto,
			UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			APIVersion: "v21.0",
			WebBaseURL: "https://www.instagram.com",
			GraphURL:   "https://graph.instagram.com",
			Timeout:    30 * time.Second,
		},
		Auth: AuthConfig{
			RetryDelay:     10 * time.Minute,
			VerifyInterval: 5 * time.Minute,
		},
		Keywords: KeywordConfig{
			Strategy: StrategyConsentRequired,
			General:  []string{"dm me", "send link", "info", "details", "interested"},
			Consent:  []string{"dm me", "send link", "send me the link", "message me", "yes please"},
			Interest: []string{"interested", "info", "details", "how much", "price"},
		},
		Messages: MessageConfig{
			DirectMessage:        "Hi! Thanks for your interest! \n\nHere's the link you requested: {link}\n\nLet me know if you have any questions!",
			DefaultLink:          "https://your-website.com",
			EncouragementReply:   "Thanks @{username}! Comment \"send link\" or send us a message and we'll DM you the details.",
			ConsentFallbackReply: "Hi @{username}, we couldn't message you directly. Please send us a DM and we'll share the link!",
			EnableDirectDM:       true,
		},
		Monitoring: MonitoringConfig{
			MonitorAllPosts: false,
			MaxPostAgeDays:  7,
			MaxPostsToCheck: 5,
			CheckInterval:   5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
			MinDelay:          1 * time.Second,
			MaxDelay:          10 * time.Second,
			ItemMinDelay:      2 * time.Second,
			ItemMaxDelay:      5 * time.Second,
			Backoff:           30 * time.Second,
			MaxBackoff:        5 * time.Minute,
			BackoffMultiplier: 2.0,
			MaxDMsPerHour:     40,
		},
		Webhook: WebhookConfig{
			Enabled:         false,
			ListenAddr:      ":8080",
			Path:            "/webhook",
			Workers:         2,
			QueueSize:       100,
			RateLimitPerMin: 300,
		},
		Admin: AdminConfig{
			Enabled: true,
		},
		Storage: StorageConfig{
			DataDir:        dataDir,
			DatabasePath:   filepath.Join(dataDir, "igdmbot.db"),
			SessionFile:    filepath.Join(dataDir, "session.json"),
			RuntimeFile:    filepath.Join(dataDir, "runtime.yaml"),
			EncryptSession: false,
		},
		Notifications: NotificationConfig{
			Enabled:       false,
			OnAuthFailure: true,
			OnRateLimit:   false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// defaultDataDir follows XDG_DATA_HOME, falling back to ~/.local/share.
func defaultDataDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "igdmbot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".igdmbot"
	}
	return filepath.Join(home, ".local", "share", "igdmbot")
}

// ResolvedMode returns the gateway mode, deriving it from the configured
// credential when Mode is "auto" or empty.
func (c *Config) ResolvedMode() string {
	switch c.Instagram.Mode {
	case ModeWeb, ModeGraph:
		return c.Instagram.Mode
	}
	if c.Instagram.SessionID == "" && c.Instagram.Password == "" && c.Instagram.AccessToken != "" {
		return ModeGraph
	}
	return ModeWeb
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setList := func(key string, target *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*target = SplitList(v)
		}
	}
	setDuration := func(key string, target *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*target = d
		}
	}
	setInt := func(key string, target *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*target = n
		}
	}
	setBool := func(key string, target *bool) {
		if v := os.Getenv(key); v != "" {
			*target = strings.EqualFold(v, "true") || v == "1"
		}
	}

	// Instagram credentials
	setString("IGDMBOT_INSTAGRAM_MODE", &c.Instagram.Mode)
	setString("IGDMBOT_INSTAGRAM_USERNAME", &c.Instagram.Username)
	setString("IGDMBOT_INSTAGRAM_PASSWORD", &c.Instagram.Password)
	setString("IGDMBOT_INSTAGRAM_BACKUP_CODE", &c.Instagram.BackupCode)
	setString("IGDMBOT_INSTAGRAM_SESSION_ID", &c.Instagram.SessionID)
	setString("IGDMBOT_INSTAGRAM_ACCESS_TOKEN", &c.Instagram.AccessToken)
	setString("IGDMBOT_INSTAGRAM_ACCOUNT_ID", &c.Instagram.AccountID)
	setString("IGDMBOT_USER_AGENT", &c.Instagram.UserAgent)
	setDuration("IGDMBOT_TIMEOUT", &c.Instagram.Timeout)

	setDuration("IGDMBOT_AUTH_RETRY_DELAY", &c.Auth.RetryDelay)
	setDuration("IGDMBOT_AUTH_VERIFY_INTERVAL", &c.Auth.VerifyInterval)

	// Keywords
	if v := os.Getenv("IGDMBOT_KEYWORD_STRATEGY"); v != "" {
		c.Keywords.Strategy = Strategy(v)
	}
	setList("IGDMBOT_KEYWORDS", &c.Keywords.General)
	setList("IGDMBOT_CONSENT_KEYWORDS", &c.Keywords.Consent)
	setList("IGDMBOT_INTEREST_KEYWORDS", &c.Keywords.Interest)

	setString("IGDMBOT_DM_MESSAGE", &c.Messages.DirectMessage)
	setString("IGDMBOT_DEFAULT_LINK", &c.Messages.DefaultLink)
	setBool("IGDMBOT_ENABLE_DIRECT_DM", &c.Messages.EnableDirectDM)

	setBool("IGDMBOT_MONITOR_ALL_POSTS", &c.Monitoring.MonitorAllPosts)
	setList("IGDMBOT_POST_IDS", &c.Monitoring.PostIDs)
	setDuration("IGDMBOT_CHECK_INTERVAL", &c.Monitoring.CheckInterval)
	setInt("IGDMBOT_MAX_POSTS_TO_CHECK", &c.Monitoring.MaxPostsToCheck)

	setInt("IGDMBOT_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	setInt("IGDMBOT_MAX_DMS_PER_HOUR", &c.RateLimit.MaxDMsPerHour)

	setBool("IGDMBOT_WEBHOOK_ENABLED", &c.Webhook.Enabled)
	setString("IGDMBOT_WEBHOOK_LISTEN_ADDR", &c.Webhook.ListenAddr)
	setString("IGDMBOT_WEBHOOK_VERIFY_TOKEN", &c.Webhook.VerifyToken)
	setString("IGDMBOT_WEBHOOK_APP_SECRET", &c.Webhook.AppSecret)
	setString("IGDMBOT_ADMIN_TOKEN", &c.Admin.Token)

	if v := os.Getenv("IGDMBOT_DATA_DIR"); v != "" {
		c.SetDataDir(v)
	}
	setString("IGDMBOT_DATABASE_PATH", &c.Storage.DatabasePath)
	setString("IGDMBOT_SESSION_FILE", &c.Storage.SessionFile)
	setBool("IGDMBOT_ENCRYPT_SESSION", &c.Storage.EncryptSession)

	setBool("IGDMBOT_NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)

	// Logging level
	setString("IGDMBOT_LOG_LEVEL", &c.Logging.Level)
	setString("IGDMBOT_LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// SetDataDir moves every storage path that still points into the old data
// directory under dir.
func (c *Config) SetDataDir(dir string) {
	old := c.Storage.DataDir
	rebase := func(p string) string {
		if old != "" && strings.HasPrefix(p, old+string(filepath.Separator)) {
			return filepath.Join(dir, strings.TrimPrefix(p, old+string(filepath.Separator)))
		}
		return p
	}
	c.Storage.DatabasePath = rebase(c.Storage.DatabasePath)
	c.Storage.SessionFile = rebase(c.Storage.SessionFile)
	c.Storage.RuntimeFile = rebase(c.Storage.RuntimeFile)
	c.Storage.DataDir = dir
}

// SplitList splits a comma or newline separated list, trimming blanks.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML or TOML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = tomlToYAML(data)
		if err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	dataDir := c.Storage.DataDir
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if c.Storage.DataDir != dataDir {
		newDir := c.Storage.DataDir
		c.Storage.DataDir = dataDir
		c.SetDataDir(newDir)
	}

	return nil
}

// tomlToYAML re-encodes a TOML document as YAML so both formats share the
// same decoding rules (durations as "5m" strings, for instance).
func tomlToYAML(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return yaml.Marshal(raw)
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"igdmbot.yaml",
		"igdmbot.yml",
		"igdmbot.toml",
		filepath.Join(home, ".config", "igdmbot", "config.yaml"),
		filepath.Join(home, ".config", "igdmbot", "config.yml"),
		filepath.Join(home, ".config", "igdmbot", "config.toml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.Instagram.Mode {
	case "", ModeAuto, ModeWeb, ModeGraph:
	default:
		errs = append(errs, fmt.Errorf("unknown instagram mode %q", c.Instagram.Mode))
	}
	if c.Instagram.Timeout <= 0 {
		errs = append(errs, errors.New("instagram timeout must be positive"))
	}
	if c.Auth.RetryDelay < 0 || c.Auth.VerifyInterval < 0 {
		errs = append(errs, errors.New("auth delays cannot be negative"))
	}

	if !c.Keywords.Strategy.Valid() {
		errs = append(errs, fmt.Errorf("keyword strategy must be %q or %q", StrategyConsentRequired, StrategyAnyKeyword))
	}
	if len(c.Keywords.General) == 0 {
		errs = append(errs, errors.New("at least one keyword is required"))
	}
	if c.Keywords.Strategy == StrategyConsentRequired && len(c.Keywords.Consent) == 0 {
		errs = append(errs, errors.New("consent_required strategy needs consent keywords"))
	}
	if strings.TrimSpace(c.Messages.DirectMessage) == "" {
		errs = append(errs, errors.New("direct message template is required"))
	}

	if c.Monitoring.MaxPostsToCheck <= 0 {
		errs = append(errs, errors.New("max posts to check must be positive"))
	}
	if c.Monitoring.CheckInterval <= 0 {
		errs = append(errs, errors.New("check interval must be positive"))
	}
	if c.Monitoring.MaxPostAgeDays < 0 {
		errs = append(errs, errors.New("max post age cannot be negative"))
	}

	// Validate rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.RateLimit.MinDelay < 0 || c.RateLimit.MaxDelay < c.RateLimit.MinDelay {
		errs = append(errs, errors.New("call delay range is invalid"))
	}
	if c.RateLimit.ItemMinDelay < 0 || c.RateLimit.ItemMaxDelay < c.RateLimit.ItemMinDelay {
		errs = append(errs, errors.New("item delay range is invalid"))
	}
	if c.RateLimit.MaxBackoff < c.RateLimit.Backoff {
		errs = append(errs, errors.New("max backoff must not be below backoff"))
	}
	if c.RateLimit.MaxDMsPerHour < 0 {
		errs = append(errs, errors.New("max DMs per hour cannot be negative"))
	}

	if c.Webhook.Enabled && c.Webhook.VerifyToken == "" {
		errs = append(errs, errors.New("webhook verify token is required when the webhook is enabled"))
	}
	if c.Webhook.Workers <= 0 {
		errs = append(errs, errors.New("webhook workers must be positive"))
	}

	if c.Storage.DatabasePath == "" || c.Storage.SessionFile == "" {
		errs = append(errs, errors.New("database path and session file are required"))
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, errors.New("log format must be console or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save writes the configuration as YAML. The file is replaced atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync config file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if username, ok := flags["username"].(string); ok && username != "" {
		c.Instagram.Username = username
	}
	if mode, ok := flags["mode"].(string); ok && mode != "" {
		c.Instagram.Mode = mode
	}
	if dataDir, ok := flags["data-dir"].(string); ok && dataDir != "" {
		c.SetDataDir(dataDir)
	}
	if interval, ok := flags["interval"].(time.Duration); ok && interval > 0 {
		c.Monitoring.CheckInterval = interval
	}
	if listen, ok := flags["listen"].(string); ok && listen != "" {
		c.Webhook.ListenAddr = listen
	}
	if webhook, ok := flags["webhook"].(bool); ok {
		c.Webhook.Enabled = webhook
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat, ok := flags["log-format"].(string); ok && logFormat != "" {
		c.Logging.Format = logFormat
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: flags > environment (.env included) > runtime overrides > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igdmbot.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Data dir may come from env or flags and decides where the runtime file lives
	if v := os.Getenv("IGDMBOT_DATA_DIR"); v != "" {
		config.SetDataDir(v)
	}
	if dataDir, ok := flags["data-dir"].(string); ok && dataDir != "" {
		config.SetDataDir(dataDir)
	}

	if err := config.LoadRuntimeOverrides(); err != nil {
		return nil, fmt.Errorf("failed to load runtime overrides: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
