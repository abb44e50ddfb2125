// Package config loads the gateway's hierarchical YAML configuration and
// applies environment-variable overrides, mirroring the donor's
// file-plus-env-override layering in cmd/gateway/main.go's tuning struct
// but generalized into the module-registry shape §6 requires.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/riverrun/voicegateway/internal/env"
)

// sensitiveFieldPattern matches config keys that must be masked in
// CONFIG_SNAPSHOT responses, per spec §6.
var sensitiveFieldPattern = regexp.MustCompile(`(?i)api.?key|secret|password|token|credential|auth|private.?key`)

const maskedValue = "******"

// ModuleConfig is one entry under the top-level `modules` mapping.
type ModuleConfig struct {
	AdapterType  string         `yaml:"adapter_type"`
	EnableModule string         `yaml:"enable_module"`
	Config       map[string]any `yaml:"config"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures the protocol server's listen address and limits.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxConnections int    `yaml:"max_connections"`
}

// Config is the root of the hierarchical YAML document.
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Logging LoggingConfig           `yaml:"logging"`
	Modules map[string]ModuleConfig `yaml:"modules"`
}

// Default returns a Config with sane defaults, used when no file is present
// or as the base onto which a file is layered.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080", MaxConnections: 1000},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Modules: map[string]ModuleConfig{
			"vad": {AdapterType: "energy", EnableModule: "energy", Config: map[string]any{}},
			"asr": {AdapterType: "whisper.cpp", EnableModule: "whisper.cpp", Config: map[string]any{}},
			"llm": {AdapterType: "ollama", EnableModule: "ollama", Config: map[string]any{}},
			"tts": {AdapterType: "fast", EnableModule: "fast", Config: map[string]any{}},
		},
	}
}

// Load reads path (if it exists) on top of Default(), then applies env
// overrides for the handful of deployment knobs operators commonly need to
// set without editing the file (listen address, log level).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Server.Addr = env.Str("GATEWAY_ADDR", cfg.Server.Addr)
	cfg.Logging.Level = env.Str("GATEWAY_LOG_LEVEL", cfg.Logging.Level)

	return cfg, nil
}

// Snapshot returns a deep-ish copy of the modules map with sensitive config
// values masked, suitable for a CONFIG_SNAPSHOT reply.
func (c *Config) Snapshot() map[string]ModuleConfig {
	out := make(map[string]ModuleConfig, len(c.Modules))
	for role, mod := range c.Modules {
		maskedCfg := make(map[string]any, len(mod.Config))
		for k, v := range mod.Config {
			if sensitiveFieldPattern.MatchString(k) {
				maskedCfg[k] = maskedValue
			} else {
				maskedCfg[k] = v
			}
		}
		out[role] = ModuleConfig{AdapterType: mod.AdapterType, EnableModule: mod.EnableModule, Config: maskedCfg}
	}
	return out
}

// ApplySet applies a CONFIG_SET update for one module's config map. Any
// field whose incoming value is the mask sentinel is left at its current
// stored value, per §6's "keep the current value" semantics (L3).
func (c *Config) ApplySet(role string, updates map[string]any) error {
	mod, ok := c.Modules[role]
	if !ok {
		return fmt.Errorf("config: unknown module %q", role)
	}
	if mod.Config == nil {
		mod.Config = make(map[string]any)
	}
	for k, v := range updates {
		if s, isStr := v.(string); isStr && s == maskedValue {
			continue
		}
		mod.Config[k] = v
	}
	c.Modules[role] = mod
	return nil
}
