// Package config loads snoop's config.toml and resolves a connection profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	configFile         = "config.toml"
	defaultMaxMessages = 100
	defaultVHost       = "/"
	defaultLogLevel    = "INFO"
	defaultLogFormat   = "text"
)

// FileConfig is the TOML file structure.
type FileConfig struct {
	Proto       string             `toml:"proto,omitempty"`
	MaxMessages int                `toml:"max_messages,omitempty"`
	VHost       string             `toml:"vhost,omitempty"`
	DBPath      string             `toml:"db,omitempty"`
	Log         LogConfig          `toml:"log,omitempty"`
	Profiles    map[string]Profile `toml:"profiles,omitempty"`
}

type LogConfig struct {
	Level  string `toml:"level,omitempty"`  // DEBUG, INFO, WARN, ERROR
	Format string `toml:"format,omitempty"` // text, json
}

// Profile is a named connection profile.
type Profile struct {
	URL           string `toml:"url"`
	ManagementURL string `toml:"management_url,omitempty"`
	Proto         string `toml:"proto,omitempty"`
	VHost         string `toml:"vhost,omitempty"`
}

// Config is the resolved runtime config after profile selection.
type Config struct {
	Profile       string
	RabbitMQURL   string
	ManagementURL string
	VHost         string
	ProtoPath     string
	DBPath        string
	MaxMessages   int
	LogLevel      string
	LogFormat     string

	ConfigDir string
}

// LoadFileConfig loads config.toml from configDir.
// Returns a zero-value FileConfig (no error) if the file doesn't exist.
func LoadFileConfig(configDir string) (*FileConfig, error) {
	path := filepath.Join(configDir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, err
	}

	var cfg FileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Resolve merges a profile (by name) with global config and env vars into a
// runtime Config. An empty profileName uses only global and env settings; a
// name that is not configured is an error.
func (fc FileConfig) Resolve(profileName string, configDir string) (Config, error) {
	cfg := Config{
		Profile:     profileName,
		ProtoPath:   fc.Proto,
		DBPath:      fc.DBPath,
		VHost:       fc.VHost,
		MaxMessages: fc.MaxMessages,
		LogLevel:    fc.Log.Level,
		LogFormat:   fc.Log.Format,
		ConfigDir:   configDir,
	}

	if profileName != "" {
		p, ok := fc.Profiles[profileName]
		if !ok {
			return Config{}, fmt.Errorf("unknown profile %q (have: %s)", profileName, strings.Join(fc.ProfileNames(), ", "))
		}
		cfg.RabbitMQURL = p.URL
		cfg.ManagementURL = p.ManagementURL
		if p.Proto != "" {
			cfg.ProtoPath = p.Proto
		}
		if p.VHost != "" {
			cfg.VHost = p.VHost
		}
	}

	// Env vars fill what the profile left unset.
	if cfg.RabbitMQURL == "" {
		if u := os.Getenv("AMQP_URL"); u != "" {
			cfg.RabbitMQURL = u
		} else if u := os.Getenv("RABBITMQ_URL"); u != "" {
			cfg.RabbitMQURL = u
		}
	}
	if cfg.ManagementURL == "" {
		cfg.ManagementURL = os.Getenv("RABBITMQ_MANAGEMENT_URL")
	}
	if lvl := os.Getenv("SNOOP_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}

	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = defaultMaxMessages
	}
	if cfg.VHost == "" {
		cfg.VHost = defaultVHost
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = defaultLogFormat
	}
	return cfg, nil
}

// LoadDotEnv reads KEY=value pairs from path (".env" when empty) into the
// environment. Variables that are already set win. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ProfileNames returns a sorted list of profile names.
func (fc FileConfig) ProfileNames() []string {
	names := make([]string, 0, len(fc.Profiles))
	for name := range fc.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
