package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches standard locations for
// keyforge.yaml/.yml.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("keyforge")
		viper.SetConfigType("yaml")
	}

	// KEYFORGE_STORE_HOST overrides store.host, etc.
	viper.SetEnvPrefix("KEYFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{".", filepath.Join(home, ".keyforge"), "/etc/keyforge"}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "keyforge"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func bindEnvKeys() {
	_ = viper.BindEnv("store.host")
	_ = viper.BindEnv("store.port")
	_ = viper.BindEnv("store.validator_principal")
	_ = viper.BindEnv("store.validator_secret")
	_ = viper.BindEnv("store.manager_principal")
	_ = viper.BindEnv("store.manager_secret")
	_ = viper.BindEnv("store.db_index")
	_ = viper.BindEnv("admin.shared_secret")
	_ = viper.BindEnv("rate.requests_per_minute")
	_ = viper.BindEnv("rate.counter_ttl_seconds")
	_ = viper.BindEnv("verifier.time_cost")
	_ = viper.BindEnv("verifier.memory_kib")
	_ = viper.BindEnv("verifier.parallelism")
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.port")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
