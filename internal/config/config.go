package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Store  StoreConfig  `mapstructure:"store"  validate:"required"`
	LLM    LLMConfig    `mapstructure:"llm"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// StoreConfig selects and configures the task store backend.
// The memory driver needs no further settings; the postgres driver
// requires a connection URL.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory postgres"`
	URL    string `mapstructure:"url"    validate:"required_if=Driver postgres,omitempty,url"`
}

// LLMConfig contains all generation backend related settings.
type LLMConfig struct {
	Provider        string `mapstructure:"provider"          validate:"required,oneof=gemini anthropic"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"    validate:"required_if=Provider gemini"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key" validate:"required_if=Provider anthropic"`
	ModelName       string `mapstructure:"model_name"        validate:"required"`
}
