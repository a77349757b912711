package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per port. Used by [Validate]
// to warn about unrecognised names without rejecting forward-compatible
// configs.
var ValidProviderNames = map[string][]string{
	"llm":       {"groq", "openai"},
	"stt":       {"deepgram"},
	"tts":       {"elevenlabs"},
	"telephony": {"telnyx", "twilio", "none"},
}

// Load reads the YAML configuration file at path, expands `${VAR}`
// environment references, and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(strings.NewReader(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Session.MaxDurationS <= 0 {
		cfg.Session.MaxDurationS = 600
	}
	if cfg.Session.IdleTimeoutS <= 0 {
		cfg.Session.IdleTimeoutS = 30
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("telephony", cfg.Providers.Telephony.Name)

	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.APIKey == "" {
		errs = append(errs, errors.New("providers.llm.api_key is required when providers.llm.name is set"))
	}
	if cfg.Providers.STT.Name != "" && cfg.Providers.STT.APIKey == "" {
		errs = append(errs, errors.New("providers.stt.api_key is required when providers.stt.name is set"))
	}
	if cfg.Providers.TTS.Name != "" && cfg.Providers.TTS.APIKey == "" {
		errs = append(errs, errors.New("providers.tts.api_key is required when providers.tts.name is set"))
	}

	if cfg.Providers.LLM.Name == "" || cfg.Providers.STT.Name == "" || cfg.Providers.TTS.Name == "" {
		slog.Warn("not all of llm/stt/tts are configured; calls will run without a pipeline")
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; using in-memory repositories")
	}

	return errors.Join(errs...)
}

// validateProviderName warns about provider names outside the known set.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if !slices.Contains(ValidProviderNames[kind], name) {
		slog.Warn("unknown provider name", "kind", kind, "name", name)
	}
}

// SlogLevel converts the configured level into a slog.Level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
