package licenses

import "time"

const (
	DefaultKeyPrefix      = "LIC"
	DefaultDurationMonths = 12
	DefaultMaxActivations = 1
	DefaultStoreTimeout   = 5 * time.Second
)

type Config struct {
	KeyPrefix             string        `mapstructure:"key_prefix"`
	DefaultDurationMonths int           `mapstructure:"default_duration_months"`
	DefaultMaxActivations int           `mapstructure:"default_max_activations"`
	StoreTimeout          time.Duration `mapstructure:"store_timeout"`
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.DefaultDurationMonths <= 0 {
		c.DefaultDurationMonths = DefaultDurationMonths
	}
	if c.DefaultMaxActivations <= 0 {
		c.DefaultMaxActivations = DefaultMaxActivations
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	return c
}
