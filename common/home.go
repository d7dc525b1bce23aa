package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetHearthStateHome returns a directory path for storing user-specific hearth
// state data (logs, traces, etc). If needed, it also creates the necessary
// directories according to the XDG spec. Can be overridden by setting the
// HEARTH_STATE_HOME environment variable.
func GetHearthStateHome() (string, error) {
	stateDir := os.Getenv("HEARTH_STATE_HOME")
	if stateDir != "" {
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create hearth state directory from HEARTH_STATE_HOME: %w", err)
		}
		return stateDir, nil
	}

	stateDir = filepath.Join(xdg.StateHome, "hearth")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create hearth state directory: %w", err)
	}
	return stateDir, nil
}

// GetHearthConfigHome returns the directory hearth reads its config file from.
// Can be overridden by setting the HEARTH_CONFIG_HOME environment variable.
func GetHearthConfigHome() (string, error) {
	configDir := os.Getenv("HEARTH_CONFIG_HOME")
	if configDir != "" {
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create hearth config directory from HEARTH_CONFIG_HOME: %w", err)
		}
		return configDir, nil
	}

	configDir = filepath.Join(xdg.ConfigHome, "hearth")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create hearth config directory: %w", err)
	}
	return configDir, nil
}

// GetServerPort returns the port the hearth API server listens on, preferring
// the HEARTH_SERVER_PORT environment variable over the default.
func GetServerPort() int {
	if port := os.Getenv("HEARTH_SERVER_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			return p
		}
	}
	return DefaultServerPort
}
