// Package brand provides the names and default paths shared by every tool.
//
// The values are loaded from brand.json at compile time via go:embed so that
// packaging scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	SettingsFileName string `json:"settingsFileName"`
	BinaryName       string `json:"binaryName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	SettingsFileName = b.SettingsFileName
	BinaryName = b.BinaryName
}

var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	SettingsFileName string
	BinaryName       string

	// Version is set at build time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: NETEMSTATE_CONFIG_DIR > NETEMSTATE_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// DefaultSettingsPath is where the tools look for settings when no
// --settings flag is given.
func DefaultSettingsPath() string {
	return filepath.Join(GetConfigDir(), SettingsFileName)
}
