package config

import (
	"os"
	"strconv"
)

// Environment variables honored by webNERD. These take precedence over
// the config file so a run can be tuned without editing YAML.
const (
	EnvDebug                 = "WEB_AGENT_DEBUG"
	EnvDOMTruncateChars      = "WEB_AGENT_DOM_TRUNCATE_CHARS"
	EnvDOMTruncateLocation   = "WEB_AGENT_DOM_TRUNCATE_CHARS_LOCATION"
	EnvDOMTruncateAction     = "WEB_AGENT_DOM_TRUNCATE_CHARS_ACTION"
	EnvInteractiveMaxItems   = "WEB_AGENT_INTERACTIVE_MAX_ITEMS"
	EnvInteractiveTextMax    = "WEB_AGENT_INTERACTIVE_INCLUDE_TEXT_MAX"
	EnvOpenAIAPIKey          = "OPENAI_API_KEY"
	EnvGeminiAPIKey          = "GEMINI_API_KEY"
)

// ApplyEnvOverrides mutates cfg with any recognized environment values.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if v := os.Getenv(EnvDebug); v != "" {
		cfg.Logging.DebugMode = v == "1" || v == "true" || v == "yes"
	}
	if n, ok := envInt(EnvDOMTruncateChars); ok {
		cfg.DOM.TruncateChars = n
	}
	if n, ok := envInt(EnvDOMTruncateLocation); ok {
		cfg.DOM.TruncateCharsLocation = n
	}
	if n, ok := envInt(EnvDOMTruncateAction); ok {
		cfg.DOM.TruncateCharsAction = n
	}
	if n, ok := envInt(EnvInteractiveMaxItems); ok {
		cfg.DOM.InteractiveMaxItems = n
	}
	if n, ok := envInt(EnvInteractiveTextMax); ok {
		cfg.DOM.IncludeTextMax = n
	}

	// API keys from the environment only fill gaps; explicit config wins.
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.APIKey = os.Getenv(EnvGeminiAPIKey)
		default:
			cfg.LLM.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
