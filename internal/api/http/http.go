package http

type Config struct {
	Port            uint            `mapstructure:"port"`
	AdminAPIKey     string          `mapstructure:"admin_api_key"`
	AdminAPIKeyHash string          `mapstructure:"admin_api_key_hash"`
	CorsOrigins     string          `mapstructure:"cors_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits public license routes per client IP. Requests <= 0
// disables the limiter.
type RateLimitConfig struct {
	Requests int64  `mapstructure:"requests"`
	Period   string `mapstructure:"period"`
}
