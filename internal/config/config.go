// Package config loads webNERD configuration from .webnerd/config.yaml
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all webNERD configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM     LLMConfig     `yaml:"llm"`
	Browser BrowserConfig `yaml:"browser"`
	DOM     DOMConfig     `yaml:"dom"`
	Safety  SafetyConfig  `yaml:"safety"`
	Agent   AgentConfig   `yaml:"agent"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the planner's LLM client.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// TimeoutDuration parses the timeout string, defaulting to 120s.
func (c LLMConfig) TimeoutDuration() time.Duration {
	if c.Timeout == "" {
		return 120 * time.Second
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// BrowserConfig configures the rod-driven Chrome instance.
type BrowserConfig struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	Profile             string   `yaml:"profile"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
	ActionTimeoutMs     int      `yaml:"action_timeout_ms"`
	SettleDebounceMs    int      `yaml:"settle_debounce_ms"`
}

// NavigationTimeout returns the navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// ActionTimeout returns the per-action timeout for click/type verbs.
func (c BrowserConfig) ActionTimeout() time.Duration {
	if c.ActionTimeoutMs == 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ActionTimeoutMs) * time.Millisecond
}

// SettleDebounce returns how long to wait for the DOM to settle after a
// batch before capturing the after-signature.
func (c BrowserConfig) SettleDebounce() time.Duration {
	if c.SettleDebounceMs == 0 {
		return 400 * time.Millisecond
	}
	return time.Duration(c.SettleDebounceMs) * time.Millisecond
}

// GetViewportWidth returns viewport width.
func (c BrowserConfig) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c BrowserConfig) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// DOMConfig configures the DOM processor's size budgets.
type DOMConfig struct {
	TruncateChars         int `yaml:"truncate_chars"`          // default DOM budget
	TruncateCharsLocation int `yaml:"truncate_chars_location"` // location/store/zip goals
	TruncateCharsAction   int `yaml:"truncate_chars_action"`   // cart/checkout goals
	InteractiveMaxItems   int `yaml:"interactive_max_items"`
	IncludeTextMax        int `yaml:"include_text_max"`
	SkeletonBudget        int `yaml:"skeleton_budget"`
}

// Defaults applied when a field is zero.
const (
	DefaultTruncateChars         = 50_000
	DefaultTruncateCharsLocation = 100_000
	DefaultTruncateCharsAction   = 150_000
	DefaultInteractiveMaxItems   = 200
	DefaultIncludeTextMax        = 50
	DefaultSkeletonBudget        = 20_000
)

// Normalize fills zero fields with defaults.
func (c *DOMConfig) Normalize() {
	if c.TruncateChars <= 0 {
		c.TruncateChars = DefaultTruncateChars
	}
	if c.TruncateCharsLocation <= 0 {
		c.TruncateCharsLocation = DefaultTruncateCharsLocation
	}
	if c.TruncateCharsAction <= 0 {
		c.TruncateCharsAction = DefaultTruncateCharsAction
	}
	if c.InteractiveMaxItems <= 0 {
		c.InteractiveMaxItems = DefaultInteractiveMaxItems
	}
	if c.IncludeTextMax <= 0 {
		c.IncludeTextMax = DefaultIncludeTextMax
	}
	if c.SkeletonBudget <= 0 {
		c.SkeletonBudget = DefaultSkeletonBudget
	}
}

// SafetyConfig exposes the policy thresholds and host sets that the
// source system hard-coded.
type SafetyConfig struct {
	Mode                string   `yaml:"mode"` // autonomous, interactive
	ApprovedHosts       []string `yaml:"approved_hosts"`
	DeniedHostPatterns  []string `yaml:"denied_host_patterns"`
	ConfirmThreshold    int      `yaml:"confirm_threshold"`    // risk reasons before confirm
	ConfidenceFloor     float64  `yaml:"confidence_floor"`     // below this, add a risk reason
	AllowFormSubmission bool     `yaml:"allow_form_submission"`
}

// Normalize fills zero fields with defaults.
func (c *SafetyConfig) Normalize() {
	if c.Mode == "" {
		c.Mode = "autonomous"
	}
	if c.ConfirmThreshold <= 0 {
		c.ConfirmThreshold = 3
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = 0.3
	}
}

// AgentConfig configures the coordinator's episode loop.
type AgentConfig struct {
	MaxIterations    int    `yaml:"max_iterations"`
	MaxBreadcrumbs   int    `yaml:"max_breadcrumbs"`
	RecentEventLimit int    `yaml:"recent_event_limit"`
	InterStepSleepMs int    `yaml:"inter_step_sleep_ms"`
	SessionDir       string `yaml:"session_dir"`
	DebugDir         string `yaml:"debug_dir"`
	ArchivePath      string `yaml:"archive_path"` // SQLite episode archive
}

// Normalize fills zero fields with defaults.
func (c *AgentConfig) Normalize() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 20
	}
	if c.MaxBreadcrumbs <= 0 {
		c.MaxBreadcrumbs = 5
	}
	if c.RecentEventLimit <= 0 {
		c.RecentEventLimit = 5
	}
	if c.InterStepSleepMs <= 0 {
		c.InterStepSleepMs = 750
	}
	if c.SessionDir == "" {
		c.SessionDir = filepath.Join(".webnerd", "sessions")
	}
	if c.DebugDir == "" {
		c.DebugDir = filepath.Join(".webnerd", "debug")
	}
}

// InterStepSleep returns the pause between coordinator steps.
func (c AgentConfig) InterStepSleep() time.Duration {
	return time.Duration(c.InterStepSleepMs) * time.Millisecond
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfigPath returns the default path to .webnerd/config.yaml.
func DefaultConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".webnerd", "config.yaml")
	}
	return filepath.Join(cwd, ".webnerd", "config.yaml")
}

// Default returns a fully-normalized default configuration.
func Default() *Config {
	cfg := &Config{
		Name:    "webnerd",
		Version: "1.0.0",
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			BaseURL:     "https://api.openai.com/v1",
			Timeout:     "120s",
			MaxTokens:   4096,
			Temperature: 0.1,
		},
		Browser: BrowserConfig{
			Headless:            false,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
			ActionTimeoutMs:     15000,
			SettleDebounceMs:    400,
		},
	}
	cfg.DOM.Normalize()
	cfg.Safety.Normalize()
	cfg.Agent.Normalize()
	return cfg
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.DOM.Normalize()
	cfg.Safety.Normalize()
	cfg.Agent.Normalize()
	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes the config back to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
