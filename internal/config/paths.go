// Package config provides configuration management for edjournal.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "edjournal"

// Paths locates edjournal's own files. Journals live wherever the game
// writes them; see DefaultJournalDir.
type Paths struct {
	// ConfigDir holds config.yaml (~/.config/edjournal)
	ConfigDir string

	// DataDir holds the database and backups (~/.local/share/edjournal)
	DataDir string
}

// DefaultPaths follows the XDG base directory layout, or %APPDATA% and
// %LOCALAPPDATA% on Windows.
func DefaultPaths() *Paths {
	home := homeDir()
	if runtime.GOOS == "windows" {
		return &Paths{
			ConfigDir: filepath.Join(envOr("APPDATA", filepath.Join(home, "AppData", "Roaming")), appName),
			DataDir:   filepath.Join(envOr("LOCALAPPDATA", filepath.Join(home, "AppData", "Local")), appName),
		}
	}
	return &Paths{
		ConfigDir: filepath.Join(envOr("XDG_CONFIG_HOME", filepath.Join(home, ".config")), appName),
		DataDir:   filepath.Join(envOr("XDG_DATA_HOME", filepath.Join(home, ".local", "share")), appName),
	}
}

func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

func (p *Paths) DatabaseFile() string {
	return filepath.Join(p.DataDir, "exploration.db")
}

// BackupDir is where `db backup` writes when no destination is given.
func (p *Paths) BackupDir() string {
	return filepath.Join(p.DataDir, "backups")
}

// DefaultJournalDir returns where the game writes its journal files.
// On Linux the game runs under Proton, so the Windows layout is found
// inside the Steam compatibility prefix.
func DefaultJournalDir() string {
	home := homeDir()
	if runtime.GOOS == "windows" {
		return filepath.Join(envOr("USERPROFILE", home), "Saved Games", "Frontier Developments", "Elite Dangerous")
	}
	return filepath.Join(home, ".local", "share", "Steam", "steamapps", "compatdata", "359320",
		"pfx", "drive_c", "users", "steamuser", "Saved Games", "Frontier Developments", "Elite Dangerous")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	if runtime.GOOS == "windows" {
		return os.Getenv("USERPROFILE")
	}
	return os.Getenv("HOME")
}
