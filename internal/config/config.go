// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the journey CLI and library.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Network  NetworkConfig  `mapstructure:"network"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Mail     MailConfig     `mapstructure:"mail"`
	CRM      CRMConfig      `mapstructure:"crm"`
	Store    StoreConfig    `mapstructure:"store"`
	Journey  JourneyConfig  `mapstructure:"journey"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	ServiceName string      `mapstructure:"service_name"`
	LogFile     string      `mapstructure:"log_file"`
	MaxSize     int         `mapstructure:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups"`
	MaxAge      int         `mapstructure:"max_age"`
	Compress    bool        `mapstructure:"compress"`
	AddSource   bool        `mapstructure:"add_source"`
	Colors      ColorConfig `mapstructure:"colors"`
}

// ColorConfig maps log levels to terminal colors for console output.
type ColorConfig struct {
	Debug string `mapstructure:"debug"`
	Info  string `mapstructure:"info"`
	Warn  string `mapstructure:"warn"`
	Error string `mapstructure:"error"`
	Fatal string `mapstructure:"fatal"`
}

// BrowserConfig controls the chromedp allocator and session behavior.
type BrowserConfig struct {
	// Flavor names the backend whose interaction semantics apply
	// (chrome, firefox, safari). The shipped driver is Chrome; the
	// flavor still matters for the stabilizer's strategy selection
	// when running against remote grids.
	Flavor      string        `mapstructure:"flavor"`
	Headless    bool          `mapstructure:"headless"`
	UserAgent   string        `mapstructure:"user_agent"`
	Concurrency int           `mapstructure:"concurrency"`
	ExecPath    string        `mapstructure:"exec_path"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

// NetworkConfig controls navigation and settling behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait"`
	SettleWait        time.Duration `mapstructure:"settle_wait"`
}

// AccountsConfig locates the accounts service under test.
type AccountsConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Destination is the page a finished journey should land on.
	// Empty means the profile page.
	Destination string `mapstructure:"destination"`
	// EmbeddedProduct marks signups initiated from inside a product
	// context, which skips the role selector and the terms step.
	EmbeddedProduct bool `mapstructure:"embedded_product"`
	// PaymentsURL roots the payment-management console for post-signup
	// session checks. Empty disables them.
	PaymentsURL string `mapstructure:"payments_url"`
}

// MailConfig locates the disposable-inbox service used for PIN retrieval.
type MailConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
}

// CRMConfig locates the records system used for post-signup verification.
type CRMConfig struct {
	InstanceURL string `mapstructure:"instance_url"`
	Token       string `mapstructure:"token"`
	APIVersion  string `mapstructure:"api_version"`
}

// StoreConfig enables run-record persistence when URL is set.
type StoreConfig struct {
	URL string `mapstructure:"url"`
}

// JourneyConfig tunes the signup state machine.
type JourneyConfig struct {
	// PinAttempts bounds the verification retry loop.
	PinAttempts int `mapstructure:"pin_attempts"`
	// Subjects overrides the built-in subject catalog when non-empty.
	Subjects []string `mapstructure:"subjects"`
	// School is the institution name stamped on created accounts.
	School string `mapstructure:"school"`
}

// SetDefaults registers every default on the given viper instance.
// Call before reading any config source so precedence works.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "journey")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("browser.flavor", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.concurrency", 1)
	v.SetDefault("browser.step_timeout", 10*time.Second)

	v.SetDefault("network.navigation_timeout", 60*time.Second)
	v.SetDefault("network.post_load_wait", 1*time.Second)
	v.SetDefault("network.settle_wait", 500*time.Millisecond)

	v.SetDefault("accounts.base_url", "https://accounts.openstax.org")
	v.SetDefault("accounts.embedded_product", false)

	v.SetDefault("mail.endpoint", "https://restmail.net/mail")
	v.SetDefault("mail.poll_interval", 1*time.Second)
	v.SetDefault("mail.wait_timeout", 60*time.Second)

	v.SetDefault("crm.api_version", "v52.0")

	v.SetDefault("journey.pin_attempts", 5)
	v.SetDefault("journey.school", "Automation")
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	var problems []string

	if c.Browser.Concurrency < 1 {
		problems = append(problems, "browser.concurrency must be a positive integer")
	}
	if c.Browser.StepTimeout <= 0 {
		problems = append(problems, "browser.step_timeout must be a positive duration")
	}
	if c.Accounts.BaseURL == "" {
		problems = append(problems, "accounts.base_url is required")
	} else if u, err := url.Parse(c.Accounts.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "accounts.base_url must be an absolute URL")
	}
	if c.Mail.Endpoint == "" {
		problems = append(problems, "mail.endpoint is required")
	}
	if c.Mail.PollInterval <= 0 {
		problems = append(problems, "mail.poll_interval must be a positive duration")
	}
	if c.Journey.PinAttempts < 1 {
		problems = append(problems, "journey.pin_attempts must be a positive integer")
	}
	if c.CRM.InstanceURL != "" && c.CRM.Token == "" {
		problems = append(problems, "crm.token is required when crm.instance_url is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NewDefaultConfig returns a Config populated with every default.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults unmarshal into their own struct; a failure here is
		// a programming error, not a runtime condition.
		panic(fmt.Sprintf("config: defaults failed to unmarshal: %v", err))
	}
	return &cfg
}

// NewConfigFromViper binds environment variables, unmarshals, and
// validates. The env prefix is JOURNEY with dots mapped to underscores
// (accounts.base_url -> JOURNEY_ACCOUNTS_BASE_URL).
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("JOURNEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets arrive by environment only, never from the config file.
	_ = v.BindEnv("crm.token", "JOURNEY_CRM_TOKEN")
	_ = v.BindEnv("store.url", "JOURNEY_STORE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
