// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/net/publicsuffix"
)

// Interface is the read-only view of the configuration handed to the journey
// machinery. A run is configured once, so there are no setters.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Readiness() ReadinessConfig
	Actions() ActionsConfig
	Journey() JourneyConfig
	Report() ReportConfig
	Store() StoreConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	ReadinessCfg ReadinessConfig `mapstructure:"readiness" yaml:"readiness"`
	ActionsCfg   ActionsConfig   `mapstructure:"actions" yaml:"actions"`
	JourneyCfg   JourneyConfig   `mapstructure:"journey" yaml:"journey"`
	ReportCfg    ReportConfig    `mapstructure:"report" yaml:"report"`
	StoreCfg     StoreConfig     `mapstructure:"store" yaml:"store"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Readiness() ReadinessConfig { return c.ReadinessCfg }
func (c *Config) Actions() ActionsConfig     { return c.ActionsCfg }
func (c *Config) Journey() JourneyConfig     { return c.JourneyCfg }
func (c *Config) Report() ReportConfig       { return c.ReportCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserKind enumerates the browsers a session can be provisioned with.
type BrowserKind string

const (
	BrowserChrome  BrowserKind = "chrome"
	BrowserFirefox BrowserKind = "firefox"
	BrowserEdge    BrowserKind = "edge"
)

// Engine selects the automation library that drives the browser.
type Engine string

const (
	// EngineAuto picks chromedp for chrome and playwright for everything else.
	EngineAuto       Engine = ""
	EngineChromedp   Engine = "chromedp"
	EngineRod        Engine = "rod"
	EnginePlaywright Engine = "playwright"
)

// BrowserConfig holds settings for the browser session.
type BrowserConfig struct {
	Kind     BrowserKind `mapstructure:"kind" yaml:"kind"`
	Engine   Engine      `mapstructure:"engine" yaml:"engine"`
	Headless bool        `mapstructure:"headless" yaml:"headless"`
	ExecPath string      `mapstructure:"exec_path" yaml:"exec_path"`
	Args     []string    `mapstructure:"args" yaml:"args"`
	Width    int         `mapstructure:"width" yaml:"width"`
	Height   int         `mapstructure:"height" yaml:"height"`
	// Install downloads playwright browsers before launch.
	Install bool `mapstructure:"install" yaml:"install"`
	// LaunchTimeout bounds session acquisition.
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// ResolvedEngine returns the engine that will actually serve this browser kind.
func (b BrowserConfig) ResolvedEngine() Engine {
	if b.Engine != EngineAuto {
		return b.Engine
	}
	if b.Kind == BrowserChrome {
		return EngineChromedp
	}
	return EnginePlaywright
}

// ReadinessConfig tunes the composite page readiness waits.
type ReadinessConfig struct {
	Ceiling          time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
	PredicateTimeout time.Duration `mapstructure:"predicate_timeout" yaml:"predicate_timeout"`
	ContentTimeout   time.Duration `mapstructure:"content_timeout" yaml:"content_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Settle           time.Duration `mapstructure:"settle" yaml:"settle"`
}

// ActionsConfig bounds element level waits performed inside a page.
type ActionsConfig struct {
	ElementTimeout  time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	ModalTimeout    time.Duration `mapstructure:"modal_timeout" yaml:"modal_timeout"`
	StrengthTimeout time.Duration `mapstructure:"strength_timeout" yaml:"strength_timeout"`
	FrameTimeout    time.Duration `mapstructure:"frame_timeout" yaml:"frame_timeout"`
}

// JourneyConfig describes the scripted storefront scenario.
type JourneyConfig struct {
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	Query       string `mapstructure:"query" yaml:"query"`
	FirstName   string `mapstructure:"first_name" yaml:"first_name"`
	LastName    string `mapstructure:"last_name" yaml:"last_name"`
	Birthdate   string `mapstructure:"birthdate" yaml:"birthdate"`
	EmailPrefix string `mapstructure:"email_prefix" yaml:"email_prefix"`
	EmailDomain string `mapstructure:"email_domain" yaml:"email_domain"`
	CartPath    string `mapstructure:"cart_path" yaml:"cart_path"`
	Runs        int    `mapstructure:"runs" yaml:"runs"`
	Parallelism int    `mapstructure:"parallelism" yaml:"parallelism"`
}

// ReportConfig controls where journey results are written.
type ReportConfig struct {
	// Path of the JSON report. "-" writes to stdout, empty disables the report.
	Path string `mapstructure:"path" yaml:"path"`
	// Format is "json" for one document or "jsonl" for one result per line.
	Format string `mapstructure:"format" yaml:"format"`
}

// StoreConfig holds the optional result database connection.
type StoreConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "storewalk")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.kind", string(BrowserChrome))
	v.SetDefault("browser.engine", string(EngineAuto))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.width", 1920)
	v.SetDefault("browser.height", 1080)
	v.SetDefault("browser.install", false)
	v.SetDefault("browser.launch_timeout", "60s")

	// -- Readiness --
	v.SetDefault("readiness.ceiling", "60s")
	v.SetDefault("readiness.predicate_timeout", "30s")
	v.SetDefault("readiness.content_timeout", "15s")
	v.SetDefault("readiness.poll_interval", "250ms")
	v.SetDefault("readiness.settle", "1500ms")

	// -- Actions --
	v.SetDefault("actions.element_timeout", "15s")
	v.SetDefault("actions.modal_timeout", "10s")
	v.SetDefault("actions.strength_timeout", "3s")
	v.SetDefault("actions.frame_timeout", "20s")

	// -- Journey --
	v.SetDefault("journey.base_url", "https://demo.prestashop.com/")
	v.SetDefault("journey.query", "notebook")
	v.SetDefault("journey.first_name", "John")
	v.SetDefault("journey.last_name", "Doe")
	v.SetDefault("journey.birthdate", "1990-05-31")
	v.SetDefault("journey.email_prefix", "testuser")
	v.SetDefault("journey.email_domain", "test.com")
	v.SetDefault("journey.cart_path", "index.php?controller=cart&action=show")
	v.SetDefault("journey.runs", 1)
	v.SetDefault("journey.parallelism", 1)

	// -- Report --
	v.SetDefault("report.path", "")
	v.SetDefault("report.format", "json")

	// -- Store --
	v.SetDefault("store.url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// Environment variables prefixed with STOREWALK_ override file values.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix("STOREWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.ReadinessCfg.Validate(); err != nil {
		return fmt.Errorf("readiness configuration invalid: %w", err)
	}
	if err := c.ActionsCfg.Validate(); err != nil {
		return fmt.Errorf("actions configuration invalid: %w", err)
	}
	if err := c.JourneyCfg.Validate(); err != nil {
		return fmt.Errorf("journey configuration invalid: %w", err)
	}
	switch c.ReportCfg.Format {
	case "json", "jsonl":
	default:
		return fmt.Errorf("report.format %q is not one of json, jsonl", c.ReportCfg.Format)
	}
	return nil
}

// Validate checks that the browser kind is one of the enumerated kinds and that
// the selected engine can actually drive it.
func (b *BrowserConfig) Validate() error {
	switch b.Kind {
	case BrowserChrome, BrowserFirefox, BrowserEdge:
	default:
		return fmt.Errorf("browser.kind %q is not one of chrome, firefox, edge", b.Kind)
	}

	switch b.Engine {
	case EngineAuto, EngineChromedp, EngineRod, EnginePlaywright:
	default:
		return fmt.Errorf("browser.engine %q is not one of chromedp, rod, playwright", b.Engine)
	}

	engine := b.ResolvedEngine()
	if b.Kind == BrowserFirefox && engine != EnginePlaywright {
		return fmt.Errorf("browser.kind firefox requires browser.engine playwright, got %s", engine)
	}
	if b.Kind == BrowserEdge && engine != EnginePlaywright && b.ExecPath == "" {
		return fmt.Errorf("browser.kind edge with engine %s requires browser.exec_path", engine)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("browser.width and browser.height must be positive")
	}
	return nil
}

// Validate checks the readiness timing values.
func (r *ReadinessConfig) Validate() error {
	if r.Ceiling <= 0 {
		return fmt.Errorf("readiness.ceiling must be a positive duration")
	}
	if r.PredicateTimeout <= 0 || r.ContentTimeout <= 0 {
		return fmt.Errorf("readiness.predicate_timeout and readiness.content_timeout must be positive durations")
	}
	if r.PollInterval <= 0 {
		return fmt.Errorf("readiness.poll_interval must be a positive duration")
	}
	if r.Settle < 0 {
		return fmt.Errorf("readiness.settle must not be negative")
	}
	if r.Settle >= r.Ceiling {
		return fmt.Errorf("readiness.settle must be shorter than readiness.ceiling")
	}
	return nil
}

// Validate checks the action timeouts.
func (a *ActionsConfig) Validate() error {
	if a.ElementTimeout <= 0 || a.ModalTimeout <= 0 || a.StrengthTimeout <= 0 || a.FrameTimeout <= 0 {
		return fmt.Errorf("all actions timeouts must be positive durations")
	}
	return nil
}

// Validate checks the journey scenario settings.
func (j *JourneyConfig) Validate() error {
	u, err := url.Parse(j.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("journey.base_url %q must be an absolute URL", j.BaseURL)
	}
	if strings.TrimSpace(j.Query) == "" {
		return fmt.Errorf("journey.query must not be empty")
	}
	if j.FirstName == "" || j.LastName == "" {
		return fmt.Errorf("journey.first_name and journey.last_name are required")
	}
	if j.EmailPrefix == "" || j.EmailDomain == "" {
		return fmt.Errorf("journey.email_prefix and journey.email_domain are required")
	}
	// Storefronts reject addresses whose domain has no registrable part.
	if _, err := publicsuffix.EffectiveTLDPlusOne(j.EmailDomain); err != nil {
		return fmt.Errorf("journey.email_domain %q is not a registrable domain: %w", j.EmailDomain, err)
	}
	if j.Runs <= 0 {
		return fmt.Errorf("journey.runs must be a positive integer")
	}
	if j.Parallelism <= 0 {
		return fmt.Errorf("journey.parallelism must be a positive integer")
	}
	return nil
}
