// Package xdg resolves snoop's per-user directories.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "snoop"

// Dir returns the XDG directory for the application.
// It checks envVar first (e.g. XDG_DATA_HOME), falling back to ~/fallbackDot
// (e.g. .local/share). The result always has "/snoop" appended.
func Dir(envVar, fallbackDot string) (string, error) {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallbackDot, appName), nil
}

// ConfigDir holds config.toml.
func ConfigDir() (string, error) {
	return Dir("XDG_CONFIG_HOME", ".config")
}

// DataDir holds the capture database.
func DataDir() (string, error) {
	return Dir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}
