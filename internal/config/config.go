package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory when no config path
// is given.
const DefaultFileName = "bundlectl.yaml"

// Config captures acquisition, logging and classification settings.
type Config struct {
	ToolName       string            `yaml:"tool_name" validate:"required"`
	CacheDir       string            `yaml:"cache_dir,omitempty"`
	TempDir        string            `yaml:"temp_dir,omitempty"`
	LogDir         string            `yaml:"log_dir,omitempty"`
	LogLevel       string            `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	ReleaseBaseURL string            `yaml:"release_base_url,omitempty" validate:"omitempty,url"`
	StreamExtract  bool              `yaml:"stream_extract"`
	StreamFallback bool              `yaml:"stream_fallback"`
	MinimumVersion string            `yaml:"minimum_version,omitempty" validate:"omitempty,bundle_version"`
	Token          string            `yaml:"token,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	UserAgent      string            `yaml:"user_agent,omitempty"`

	// Matchers are applied in order by exec before any --matcher flags.
	Matchers []MatcherConfig `yaml:"matchers,omitempty" validate:"omitempty,dive"`
	// Categories extend the built-in classifier registry and are consulted
	// after it.
	Categories    []CategoryConfig `yaml:"categories,omitempty" validate:"omitempty,dive"`
	CategoryFiles []string         `yaml:"category_files,omitempty"`
}

// MatcherConfig is the file form of a process matcher.
type MatcherConfig struct {
	ExitCode *int   `yaml:"exit_code,omitempty" validate:"required_without=Pattern"`
	Pattern  string `yaml:"pattern,omitempty" validate:"omitempty,regexp"`
	Message  string `yaml:"message" validate:"required"`
}

// CategoryConfig is the file form of a classifier category.
type CategoryConfig struct {
	Name               string   `yaml:"name" validate:"required"`
	RequiredSubstrings []string `yaml:"required_substrings" validate:"required,min=1,dive,required"`
	ExpectedExitCode   *int     `yaml:"expected_exit_code,omitempty"`
	ReplacementMessage *string  `yaml:"replacement_message,omitempty"`
	AppendOriginal     *bool    `yaml:"append_original,omitempty"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ToolName: "CodeQL",
		LogLevel: "info",
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration. Category files named by the config are resolved
// relative to the config file's directory and merged in.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		cfg.ApplyDefaults()
		return cfg, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.loadCategoryFiles(filepath.Dir(path)); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills fields the YAML omitted.
func (c *Config) ApplyDefaults() {
	defaults := Default()
	if c.ToolName == "" {
		c.ToolName = defaults.ToolName
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
}

// Authorization returns the header value for the configured token.
func (c Config) Authorization() string {
	if c.Token == "" {
		return ""
	}
	return "token " + c.Token
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
