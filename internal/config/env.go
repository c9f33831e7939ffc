package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces the environment overrides, e.g. BUNDLECTL_CACHE_DIR.
const EnvPrefix = "BUNDLECTL"

// NewViper returns a viper instance reading BUNDLECTL_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyEnv overrides file values with any environment variables that are set.
func (c *Config) ApplyEnv(v *viper.Viper) error {
	strs := map[string]*string{
		"tool_name":        &c.ToolName,
		"cache_dir":        &c.CacheDir,
		"temp_dir":         &c.TempDir,
		"log_dir":          &c.LogDir,
		"log_level":        &c.LogLevel,
		"release_base_url": &c.ReleaseBaseURL,
		"minimum_version":  &c.MinimumVersion,
		"token":            &c.Token,
		"user_agent":       &c.UserAgent,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	bools := map[string]*bool{
		"stream_extract":  &c.StreamExtract,
		"stream_fallback": &c.StreamFallback,
	}
	for key, dst := range bools {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	if v.IsSet("headers") {
		headers, err := parseHeaders(v.GetString("headers"))
		if err != nil {
			return fmt.Errorf("%s_HEADERS: %w", EnvPrefix, err)
		}
		if c.Headers == nil {
			c.Headers = map[string]string{}
		}
		for k, val := range headers {
			c.Headers[k] = val
		}
	}
	return nil
}

// parseHeaders reads "Name=value,Other=value".
func parseHeaders(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected Name=value", pair)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}
