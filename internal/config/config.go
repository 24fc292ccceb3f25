package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	ERP      ERPConfig      `yaml:"erp" mapstructure:"erp"`
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Browser  BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Timeouts TimeoutsConfig `yaml:"timeouts" mapstructure:"timeouts"`
	Scrape   ScrapeConfig   `yaml:"scrape" mapstructure:"scrape"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ERPConfig holds the portal address and credentials.
type ERPConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// PathsConfig locates the download (archive) and document (payload) areas.
// Each area also holds its tracking database.
type PathsConfig struct {
	DownloadDir string `yaml:"download_dir" mapstructure:"download_dir"`
	DocumentDir string `yaml:"document_dir" mapstructure:"document_dir"`
}

// BrowserConfig configures the Chrome process.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath     string `yaml:"exec_path" mapstructure:"exec_path"`
	WindowWidth  int    `yaml:"window_width" mapstructure:"window_width"`
	WindowHeight int    `yaml:"window_height" mapstructure:"window_height"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
}

// TimeoutsConfig bounds every wait of a run.
type TimeoutsConfig struct {
	TableSecs      int `yaml:"table_secs" mapstructure:"table_secs"`
	ElementSecs    int `yaml:"element_secs" mapstructure:"element_secs"`
	FrameSecs      int `yaml:"frame_secs" mapstructure:"frame_secs"`
	NavigationSecs int `yaml:"navigation_secs" mapstructure:"navigation_secs"`
	DownloadSecs   int `yaml:"download_secs" mapstructure:"download_secs"`
	PollIntervalMs int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	PageSettleMs   int `yaml:"page_settle_ms" mapstructure:"page_settle_ms"`
}

func (t TimeoutsConfig) Table() time.Duration      { return secs(t.TableSecs) }
func (t TimeoutsConfig) Element() time.Duration    { return secs(t.ElementSecs) }
func (t TimeoutsConfig) Frame() time.Duration      { return secs(t.FrameSecs) }
func (t TimeoutsConfig) Navigation() time.Duration { return secs(t.NavigationSecs) }
func (t TimeoutsConfig) Download() time.Duration   { return secs(t.DownloadSecs) }
func (t TimeoutsConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}
func (t TimeoutsConfig) PageSettle() time.Duration {
	return time.Duration(t.PageSettleMs) * time.Millisecond
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// ScrapeConfig configures table pagination.
type ScrapeConfig struct {
	MaxPages int `yaml:"max_pages" mapstructure:"max_pages"`
}

// RetryConfig configures retries of tracking-store writes.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// StoreConfig selects the tracking-store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP trigger API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INVOICE_RPA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so AutomaticEnv can bind it on Unmarshal.
	v.SetDefault("erp.url", "")
	v.SetDefault("erp.username", "")
	v.SetDefault("erp.password", "")
	v.SetDefault("paths.download_dir", "/tmp/invoice_downloads")
	v.SetDefault("paths.document_dir", "/tmp/xml_invoices")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("timeouts.table_secs", 20)
	v.SetDefault("timeouts.element_secs", 5)
	v.SetDefault("timeouts.frame_secs", 15)
	v.SetDefault("timeouts.navigation_secs", 60)
	v.SetDefault("timeouts.download_secs", 60)
	v.SetDefault("timeouts.poll_interval_ms", 1000)
	v.SetDefault("timeouts.page_settle_ms", 3000)
	v.SetDefault("scrape.max_pages", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Job is the JSON object an orchestrating caller passes to a run. Absent
// keys leave the loaded configuration untouched.
type Job struct {
	ERPURL       *string `json:"erpUrl"`
	ERPUsername  *string `json:"erpUsername"`
	ERPPassword  *string `json:"erpPassword"`
	DownloadPath *string `json:"downloadPath"`
	XMLPath      *string `json:"xmlPath"`
	Headless     *bool   `json:"headless"`
}

// ApplyJob overlays the JSON job object raw onto cfg. Empty input is a no-op.
func ApplyJob(cfg *Config, raw []byte) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return eris.Wrap(err, "config: parse job JSON")
	}
	job.Apply(cfg)
	return nil
}

// Apply overlays the fields set in j onto cfg.
func (j Job) Apply(cfg *Config) {
	set := func(dst *string, src *string) {
		if src != nil && *src != "" {
			*dst = *src
		}
	}
	set(&cfg.ERP.URL, j.ERPURL)
	set(&cfg.ERP.Username, j.ERPUsername)
	set(&cfg.ERP.Password, j.ERPPassword)
	set(&cfg.Paths.DownloadDir, j.DownloadPath)
	set(&cfg.Paths.DocumentDir, j.XMLPath)
	if j.Headless != nil {
		cfg.Browser.Headless = *j.Headless
	}
}

// Validate checks the settings a command mode needs. Modes: "run" (a full
// scraping run), "sweep" (offline phases and store maintenance), "serve".
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, key string) {
		if !ok {
			errs = append(errs, key+" is required")
		}
	}

	require(c.Paths.DownloadDir != "", "paths.download_dir")
	require(c.Paths.DocumentDir != "", "paths.document_dir")
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url")
	default:
		errs = append(errs, "store.driver must be sqlite or postgres, got "+strconv.Quote(c.Store.Driver))
	}

	switch mode {
	case "run":
		require(c.ERP.URL != "", "erp.url")
		require(c.ERP.Username != "", "erp.username")
		require(c.ERP.Password != "", "erp.password")
		errs = append(errs, c.Timeouts.validate()...)
	case "serve":
		errs = append(errs, c.Timeouts.validate()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	case "sweep":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validate requires a real deadline on every wait of a scraping run.
func (t TimeoutsConfig) validate() []string {
	var errs []string
	positive := func(n int, key string) {
		if n <= 0 {
			errs = append(errs, key+" must be positive")
		}
	}
	positive(t.TableSecs, "timeouts.table_secs")
	positive(t.ElementSecs, "timeouts.element_secs")
	positive(t.FrameSecs, "timeouts.frame_secs")
	positive(t.NavigationSecs, "timeouts.navigation_secs")
	positive(t.DownloadSecs, "timeouts.download_secs")
	positive(t.PollIntervalMs, "timeouts.poll_interval_ms")
	if t.PageSettleMs < 0 {
		errs = append(errs, "timeouts.page_settle_ms must not be negative")
	}
	return errs
}

const redacted = "********"

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	if c.ERP.Password != "" {
		c.ERP.Password = redacted
	}
	if c.Store.DatabaseURL != "" {
		c.Store.DatabaseURL = redacted
	}
	c.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return c
}

// InitLogger initializes the global zap logger. Logs go to stderr; stdout is
// reserved for progress and result records.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
