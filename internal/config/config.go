// Package config provides the configuration schema for keyforge: the
// store principals, admin gate secret, rate limit defaults, Argon2id
// verifier parameters, and HTTP server listener.
package config

// Config is the top-level configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Admin    AdminConfig    `yaml:"admin" mapstructure:"admin"`
	Rate     RateConfig     `yaml:"rate" mapstructure:"rate"`
	Verifier VerifierConfig `yaml:"verifier" mapstructure:"verifier"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`

	// DevMode enables an in-memory store instead of Redis. Never set in
	// production: validations and mints are lost on restart.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// StoreConfig configures the two Redis connection principals described
// in §5 of the design: a read-mostly validator principal bound to the
// Validator, and a read-write manager principal bound to Admin
// Operations. Both principals connect to the single Host/Port below,
// each with its own credentials.
type StoreConfig struct {
	Host string `yaml:"host" mapstructure:"host" validate:"required,hostname|ip"`
	Port int    `yaml:"port" mapstructure:"port" validate:"required,min=1,max=65535"`

	ValidatorPrincipal string `yaml:"validator_principal" mapstructure:"validator_principal" validate:"required"`
	ValidatorSecret    string `yaml:"validator_secret" mapstructure:"validator_secret" validate:"required"`

	ManagerPrincipal string `yaml:"manager_principal" mapstructure:"manager_principal" validate:"required"`
	ManagerSecret    string `yaml:"manager_secret" mapstructure:"manager_secret" validate:"required"`

	DBIndex int `yaml:"db_index" mapstructure:"db_index" validate:"min=0"`
}

// AdminConfig configures the admin bearer gate.
type AdminConfig struct {
	SharedSecret string `yaml:"shared_secret" mapstructure:"shared_secret" validate:"required,min=16"`
}

// RateConfig configures the fixed-window rate limiter.
type RateConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute" validate:"omitempty,min=1"`
	CounterTTLSeconds int `yaml:"counter_ttl_seconds" mapstructure:"counter_ttl_seconds" validate:"omitempty,min=61,max=300"`
}

// VerifierConfig holds the Argon2id parameter settings. They are loaded,
// defaulted and validated here, but nothing reads them after that: the
// verifier package always derives with its own fixed parameters (time
// cost 3, 64 MiB, parallelism 1), whatever these fields say.
type VerifierConfig struct {
	TimeCost    uint32 `yaml:"time_cost" mapstructure:"time_cost" validate:"omitempty,min=1"`
	MemoryKiB   uint32 `yaml:"memory_kib" mapstructure:"memory_kib" validate:"omitempty,min=8"`
	Parallelism uint8  `yaml:"parallelism" mapstructure:"parallelism" validate:"omitempty,min=1"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host" validate:"omitempty,hostname|ip"`
	Port int    `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

const (
	defaultRequestsPerMinute = 100
	defaultCounterTTLSeconds = 120
	defaultTimeCost          = 3
	defaultMemoryKiB         = 64 * 1024
	defaultParallelism       = 1
	defaultServerHost        = "127.0.0.1"
	defaultServerPort        = 8080
)

// SetDefaults fills in the optional fields spec.md §6 pins a default for.
func (c *Config) SetDefaults() {
	if c.Rate.RequestsPerMinute == 0 {
		c.Rate.RequestsPerMinute = defaultRequestsPerMinute
	}
	if c.Rate.CounterTTLSeconds == 0 {
		c.Rate.CounterTTLSeconds = defaultCounterTTLSeconds
	}
	if c.Verifier.TimeCost == 0 {
		c.Verifier.TimeCost = defaultTimeCost
	}
	if c.Verifier.MemoryKiB == 0 {
		c.Verifier.MemoryKiB = defaultMemoryKiB
	}
	if c.Verifier.Parallelism == 0 {
		c.Verifier.Parallelism = defaultParallelism
	}
	if c.Server.Host == "" {
		c.Server.Host = defaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
}
