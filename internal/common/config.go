package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Browser     BrowserConfig   `toml:"browser"`
	Session     SessionConfig   `toml:"session"`
	Transport   TransportConfig `toml:"transport"`
	Readiness   ReadinessConfig `toml:"readiness"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"required,gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

// BrowserConfig controls the Chrome instance the collector drives.
type BrowserConfig struct {
	Headless    bool   `toml:"headless"`
	DisableGPU  bool   `toml:"disable_gpu"`
	NoSandbox   bool   `toml:"no_sandbox"`
	UserAgent   string `toml:"user_agent"`
	UserDataDir string `toml:"user_data_dir"` // Chrome profile dir; reuse keeps the target site's login session
	// LoadTimeout bounds the wait for a page's load-complete signal. A stall
	// past this deadline surfaces as a navigation-stall error instead of
	// suspending the session forever.
	LoadTimeout string `toml:"load_timeout" validate:"required"`
}

// SessionConfig controls the collection session's pacing and target URLs.
type SessionConfig struct {
	// ProfileURLPattern builds the main page URL from a target identifier.
	ProfileURLPattern string `toml:"profile_url_pattern" validate:"required,contains=%s"`
	// ContactInfoPattern builds the contact overlay URL from a target
	// identifier. The overlay is fetched after the queue, never queued.
	ContactInfoPattern string `toml:"contact_info_pattern" validate:"required,contains=%s"`
	// HumanDelayMin/Max bound the randomized pause between navigation and
	// scraping. Uniformly drawn per page to avoid a bot-like timing signature.
	HumanDelayMin string `toml:"human_delay_min"`
	HumanDelayMax string `toml:"human_delay_max"`
}

// TransportConfig controls the controller/agent request channel.
type TransportConfig struct {
	RequestTimeout string `toml:"request_timeout"` // Bound on a single command round-trip
	RetryDelay     string `toml:"retry_delay"`     // Fixed delay before the single retry of a failed send
}

// ReadinessConfig controls the ping/install/ping handshake used to confirm a
// page agent is alive after navigation.
type ReadinessConfig struct {
	MaxPingAttempts   int    `toml:"max_ping_attempts" validate:"gt=0"` // Pings before attempting reinstall
	RetryPingAttempts int    `toml:"retry_ping_attempts" validate:"gt=0"`
	PingInterval      string `toml:"ping_interval"`
	InstallSettle     string `toml:"install_settle"` // Wait after reinstall before pinging again
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type WebSocketConfig struct {
	// ProgressThrottle caps session_progress broadcast frequency, e.g. "500ms".
	// Empty disables throttling.
	ProgressThrottle string `toml:"progress_throttle"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings should be exposed in colligo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8087,
			Host: "localhost",
		},
		Browser: BrowserConfig{
			Headless:    true,
			DisableGPU:  true,
			NoSandbox:   false,
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			UserDataDir: "",
			LoadTimeout: "45s",
		},
		Session: SessionConfig{
			ProfileURLPattern:  "https://www.linkedin.com/in/%s/",
			ContactInfoPattern: "https://www.linkedin.com/in/%s/overlay/contact-info/",
			HumanDelayMin:      "2s",
			HumanDelayMax:      "4s",
		},
		Transport: TransportConfig{
			RequestTimeout: "30s",
			RetryDelay:     "1s",
		},
		Readiness: ReadinessConfig{
			MaxPingAttempts:   10,
			RetryPingAttempts: 5,
			PingInterval:      "200ms",
			InstallSettle:     "500ms",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			ProgressThrottle: "500ms",
		},
	}
}

// LoadFromFiles loads configuration from defaults, then merges each config
// file in order (later files override earlier ones), then applies environment
// variable overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("COLLIGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COLLIGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if headless := os.Getenv("COLLIGO_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if userAgent := os.Getenv("COLLIGO_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}
	if userDataDir := os.Getenv("COLLIGO_BROWSER_USER_DATA_DIR"); userDataDir != "" {
		config.Browser.UserDataDir = userDataDir
	}
	if loadTimeout := os.Getenv("COLLIGO_BROWSER_LOAD_TIMEOUT"); loadTimeout != "" {
		if _, err := time.ParseDuration(loadTimeout); err == nil {
			config.Browser.LoadTimeout = loadTimeout
		}
	}

	if delayMin := os.Getenv("COLLIGO_SESSION_HUMAN_DELAY_MIN"); delayMin != "" {
		if _, err := time.ParseDuration(delayMin); err == nil {
			config.Session.HumanDelayMin = delayMin
		}
	}
	if delayMax := os.Getenv("COLLIGO_SESSION_HUMAN_DELAY_MAX"); delayMax != "" {
		if _, err := time.ParseDuration(delayMax); err == nil {
			config.Session.HumanDelayMax = delayMax
		}
	}

	if badgerPath := os.Getenv("COLLIGO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("COLLIGO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration for structural problems before startup.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Duration strings are validated here rather than at use sites so a
	// malformed value fails startup instead of a mid-session step.
	durations := map[string]string{
		"browser.load_timeout":        c.Browser.LoadTimeout,
		"session.human_delay_min":     c.Session.HumanDelayMin,
		"session.human_delay_max":     c.Session.HumanDelayMax,
		"transport.request_timeout":   c.Transport.RequestTimeout,
		"transport.retry_delay":       c.Transport.RetryDelay,
		"readiness.ping_interval":     c.Readiness.PingInterval,
		"readiness.install_settle":    c.Readiness.InstallSettle,
		"websocket.progress_throttle": c.WebSocket.ProgressThrottle,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", field, err)
		}
	}

	min := ParseDurationOr(c.Session.HumanDelayMin, 0)
	max := ParseDurationOr(c.Session.HumanDelayMax, 0)
	if max < min {
		return fmt.Errorf("invalid configuration: session.human_delay_max (%s) is below human_delay_min (%s)", c.Session.HumanDelayMax, c.Session.HumanDelayMin)
	}

	return nil
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ParseDurationOr parses a duration string, falling back to def when the
// value is empty or malformed.
func ParseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
