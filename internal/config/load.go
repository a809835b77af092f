package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults keep a bare environment runnable with the in-memory store.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	// Optional config file: ./config.yaml or /etc/converse/config.yaml.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/converse")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with CONVERSE_ prefix override file values,
	// e.g. CONVERSE_SERVER_PORT, CONVERSE_LLM_GEMINI_API_KEY.
	v.SetEnvPrefix("CONVERSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper only surfaces env-var values for keys it knows about, so bind
	// every key we unmarshal.
	for _, key := range []string{
		"server.port", "server.log_level",
		"store.driver", "store.url",
		"llm.provider", "llm.gemini_api_key", "llm.anthropic_api_key", "llm.model_name",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
