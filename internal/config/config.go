// Package config loads rollcall configuration: built-in defaults, an
// optional YAML file, then environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full tool configuration.
type Config struct {
	Portal  PortalConfig  `yaml:"portal"`
	Browser BrowserConfig `yaml:"browser"`
	Data    DataConfig    `yaml:"data"`
	Mailbox MailboxConfig `yaml:"mailbox"`
	Decode  DecodeConfig  `yaml:"decode"`
	Run     RunConfig     `yaml:"run"`
}

// PortalConfig locates the attendance portal.
type PortalConfig struct {
	BaseURL string `yaml:"base_url"`
}

// BrowserConfig mirrors the browser session settings.
type BrowserConfig struct {
	DebuggerURL         string `yaml:"debugger_url"`
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	SessionStore        string `yaml:"session_store"`
	StorageState        string `yaml:"storage_state"`
}

// DataConfig parameterizes code aggregation sources.
type DataConfig struct {
	Dir       string `yaml:"dir"`
	BaseURL   string `yaml:"base_url"`
	CodesURL  string `yaml:"codes_url"`
	CodesFile string `yaml:"codes_file"`
	Inline    string `yaml:"inline"`
}

// MailboxConfig controls webmail extraction.
type MailboxConfig struct {
	Enabled bool `yaml:"enabled"`
	// Headless applies to the dedicated mailbox browser, which runs in
	// its own instance so it can stay visible while the portal browser
	// does not.
	Headless        bool   `yaml:"headless"`
	BaseURL         string `yaml:"base_url"`
	Identity        string `yaml:"identity"`
	DomainHint      string `yaml:"domain_hint"`
	QueryOverride   string `yaml:"query_override"`
	SearchDays      int    `yaml:"search_days"`
	MaxMessages     int    `yaml:"max_messages"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
	CachePath       string `yaml:"cache_path"`
	ForceRefresh    bool   `yaml:"force_refresh"`
	PurgeAfter      bool   `yaml:"purge_after"`
}

// DecodeConfig controls the vision backend.
type DecodeConfig struct {
	Policy          string `yaml:"policy"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	GeminiModel     string `yaml:"gemini_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
	CachePath       string `yaml:"cache_path"`
}

// RunConfig tunes the submission loop.
type RunConfig struct {
	Week             string `yaml:"week"`
	WeekStart        string `yaml:"week_start"` // YYYY-MM-DD, the week's Monday
	GlobalTimeoutSec int    `yaml:"global_timeout_sec"`
	DayDelayMinMs    int    `yaml:"day_delay_min_ms"`
	DayDelayMaxMs    int    `yaml:"day_delay_max_ms"`
	RetryAttempts    int    `yaml:"retry_attempts"`
	RetryBackoffMs   int    `yaml:"retry_backoff_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
			SessionStore:        ".rollcall/sessions.json",
			StorageState:        "storage_state.json",
		},
		Data: DataConfig{
			Dir: "data",
		},
		Mailbox: MailboxConfig{
			Headless:        true,
			SearchDays:      7,
			MaxMessages:     4,
			CacheTTLMinutes: 30,
			CachePath:       ".rollcall/mail_cache.json",
		},
		Decode: DecodeConfig{
			Policy:          "auto",
			CacheTTLMinutes: 0, // decoded images never go stale
			CachePath:       ".rollcall/ocr_cache.json",
		},
		Run: RunConfig{
			GlobalTimeoutSec: 600,
			DayDelayMinMs:    1500,
			DayDelayMaxMs:    4500,
			RetryAttempts:    3,
			RetryBackoffMs:   2000,
		},
	}
}

// Load builds the effective configuration from defaults, the YAML file
// at path (optional when missing), and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.Environ())

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays ROLLCALL_* variables plus the conventional API key
// names onto the configuration.
func (c *Config) ApplyEnv(environ []string) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if name, value, ok := strings.Cut(kv, "="); ok {
			env[name] = value
		}
	}

	setString := func(key string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := env[key]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := env[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("ROLLCALL_PORTAL_URL", &c.Portal.BaseURL)
	setString("ROLLCALL_STORAGE_STATE", &c.Browser.StorageState)
	setBool("ROLLCALL_HEADLESS", &c.Browser.Headless)

	setString("ROLLCALL_DATA_DIR", &c.Data.Dir)
	setString("ROLLCALL_DATA_URL", &c.Data.BaseURL)
	setString("ROLLCALL_CODES_URL", &c.Data.CodesURL)
	setString("ROLLCALL_CODES_FILE", &c.Data.CodesFile)
	setString("ROLLCALL_CODES", &c.Data.Inline)

	setBool("ROLLCALL_MAIL_ENABLED", &c.Mailbox.Enabled)
	setBool("ROLLCALL_MAIL_HEADLESS", &c.Mailbox.Headless)
	setString("ROLLCALL_MAIL_URL", &c.Mailbox.BaseURL)
	setString("ROLLCALL_MAIL_IDENTITY", &c.Mailbox.Identity)
	setString("ROLLCALL_MAIL_QUERY", &c.Mailbox.QueryOverride)
	setInt("ROLLCALL_MAIL_SEARCH_DAYS", &c.Mailbox.SearchDays)
	setInt("ROLLCALL_MAIL_CACHE_TTL", &c.Mailbox.CacheTTLMinutes)

	setString("ROLLCALL_DECODE_POLICY", &c.Decode.Policy)
	setString("GEMINI_API_KEY", &c.Decode.GeminiAPIKey)
	setString("OPENAI_API_KEY", &c.Decode.OpenAIAPIKey)

	setString("ROLLCALL_WEEK", &c.Run.Week)
	setString("ROLLCALL_WEEK_START", &c.Run.WeekStart)
	setInt("ROLLCALL_GLOBAL_TIMEOUT_SEC", &c.Run.GlobalTimeoutSec)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Decode.Policy {
	case "", "auto", "gemini", "openai", "none":
	default:
		return fmt.Errorf("decode.policy: unknown policy %q", c.Decode.Policy)
	}

	if c.Run.DayDelayMaxMs < c.Run.DayDelayMinMs {
		return fmt.Errorf("run.day_delay_max_ms must be >= run.day_delay_min_ms")
	}
	if c.Run.RetryAttempts < 1 {
		return fmt.Errorf("run.retry_attempts must be >= 1")
	}
	if c.Run.WeekStart != "" {
		if _, err := c.WeekStart(); err != nil {
			return fmt.Errorf("run.week_start: %w", err)
		}
	}
	if c.Run.Week != "" {
		if _, err := strconv.Atoi(c.Run.Week); err != nil {
			return fmt.Errorf("run.week must be numeric, got %q", c.Run.Week)
		}
	}
	return nil
}

// WeekStart parses the configured week start date.
func (c *Config) WeekStart() (time.Time, error) {
	if c.Run.WeekStart == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", c.Run.WeekStart)
}

// GlobalTimeout returns the run budget as a duration.
func (c *Config) GlobalTimeout() time.Duration {
	return time.Duration(c.Run.GlobalTimeoutSec) * time.Second
}
