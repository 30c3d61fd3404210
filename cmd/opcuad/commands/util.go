package commands

import (
	"github.com/marmos91/opcuad/pkg/config"
)

// configPathToWatch returns the file the configuration was read from, or
// "" when it came from defaults and the environment only.
func configPathToWatch(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}

// configSource describes where the configuration was loaded from.
func configSource(configFile string) string {
	if path := configPathToWatch(configFile); path != "" {
		return path
	}
	return "defaults"
}
