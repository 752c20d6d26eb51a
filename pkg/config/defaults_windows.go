//go:build windows

package config

import (
	"os"
	"path/filepath"
)

// getDefaultSocketPath returns the named pipe iftd listens on
func getDefaultSocketPath() string {
	return `\\.\pipe\iftd`
}

// DefaultConfigPath is where iftd and ift look for the daemon config
func DefaultConfigPath() string {
	programData := os.Getenv("ProgramData")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	return filepath.Join(programData, "iftd", "config.yml")
}
