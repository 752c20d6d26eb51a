//go:build !windows

package config

// getDefaultSocketPath returns the platform-specific default socket path
func getDefaultSocketPath() string {
	return "/var/run/iftd.sock"
}

// DefaultConfigPath is where iftd and ift look for the daemon config
func DefaultConfigPath() string {
	return "/etc/iftd/config.yml"
}
