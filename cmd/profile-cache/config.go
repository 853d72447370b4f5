package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	profilecache "github.com/always-cache/profile-cache"
	apiclient "github.com/always-cache/profile-cache/pkg/api-client"
)

// Config is read from the config file, then overridden by PROFILE_CACHE_* variables,
// then by command line flags.
type Config struct {
	// Base URL of the profile API.
	API string `yaml:"api" env:"PROFILE_CACHE_API"`
	// Header fields sent with every API request, e.g. Authorization.
	Header map[string]string `yaml:"header" env:"PROFILE_CACHE_HEADER"`
	// Request timeout.
	Timeout time.Duration `yaml:"timeout" env:"PROFILE_CACHE_TIMEOUT"`
	// Port of the inspection endpoint.
	Port int `yaml:"port" env:"PROFILE_CACHE_PORT"`
	// Notification history db file, "memory" for an in-memory db.
	DB string `yaml:"db" env:"PROFILE_CACHE_DB"`
	// Number of notifications kept in the history.
	HistoryLimit int `yaml:"historyLimit" env:"PROFILE_CACHE_HISTORY_LIMIT"`
	// Log file to use in addition to stdout.
	LogFile string `yaml:"logFile" env:"PROFILE_CACHE_LOG_FILE"`

	TTL ConfigTTL `yaml:"ttl" envPrefix:"PROFILE_CACHE_TTL_"`
}

type ConfigTTL struct {
	Own      time.Duration `yaml:"own" env:"OWN"`
	User     time.Duration `yaml:"user" env:"USER"`
	Visited  time.Duration `yaml:"visited" env:"VISITED"`
	List     time.Duration `yaml:"list" env:"LIST"`
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`
}

func defaultConfig() Config {
	return Config{
		Timeout:      apiclient.DefaultTimeout,
		Port:         8080,
		DB:           "profile-cache.db",
		HistoryLimit: 100,
		TTL: ConfigTTL{
			Own:      profilecache.DefaultProfileTTL,
			User:     profilecache.DefaultProfileTTL,
			Visited:  profilecache.DefaultVisitedTTL,
			List:     profilecache.DefaultListTTL,
			Debounce: profilecache.DefaultDebounce,
		},
	}
}

// getConfig returns the defaults overridden by the file (if any) and the environment.
func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, fmt.Errorf("parse %s: %w", filename, err)
		}
	}
	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}
