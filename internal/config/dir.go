package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// configDirName is a directory in the user's config directory where monitor configuration is stored
	configDirName string = "escalations"
	// configFileName is the default configuration file in the config directory
	configFileName string = "config.yaml"
)

// MustConfigDir returns the configuration directory, honoring XDG_CONFIG_HOME
func MustConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		panic(fmt.Errorf("cannot obtain user config dir: %w", err))
	}

	return filepath.Join(configDir, configDirName)
}

// DefaultPath returns the default configuration file path
func DefaultPath() string {
	return filepath.Join(MustConfigDir(), configFileName)
}
