package compliance

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the keyword sets the OWASP framework scorer matches rule
// identifiers against. The defaults reproduce the historical report
// behavior; overriding them changes score comparability across runs.
type Config struct {
	InjectionKeywords []string `mapstructure:"injection_keywords"`
	AuthKeywords      []string `mapstructure:"auth_keywords"`
	ConfigKeywords    []string `mapstructure:"config_keywords"`
}

// DefaultConfig returns the keyword sets used when no config file is given.
func DefaultConfig() *Config {
	return &Config{
		InjectionKeywords: []string{"injection"},
		AuthKeywords:      []string{"auth"},
		ConfigKeywords:    []string{"config"},
	}
}

// LoadConfig reads keyword overrides from an optional YAML file. An empty
// path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read compliance config: %w", err)
	}
	if err := viper.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal compliance config: %w", err)
	}
	return conf, nil
}
