// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration.
type Config struct {
	// Audio settings
	Audio AudioConfig `json:"audio"`

	// Loop holds the default loop policy applied to a freshly loaded track.
	Loop LoopConfig `json:"loop"`

	// Analysis controls whether the structure analyzer runs automatically
	// after a successful load.
	Analysis AnalysisConfig `json:"analysis"`
}

// AudioConfig contains output device preferences.
type AudioConfig struct {
	// SampleRate is the preferred output sink rate (default: 44100). The
	// engine's native rate always follows the loaded track; this only
	// informs how the output sink is opened.
	SampleRate int `json:"sampleRate"`

	// DefaultVolume is the initial sink volume, 0.0-1.0 (default: 1.0).
	DefaultVolume float64 `json:"defaultVolume"`
}

// LoopConfig contains default loop playback settings.
type LoopConfig struct {
	// DefaultMaxIterations is applied via SetLoopPolicy on every Load;
	// 0 means infinite.
	DefaultMaxIterations uint32 `json:"defaultMaxIterations"`
}

// AnalysisConfig controls the structure analyzer.
type AnalysisConfig struct {
	// AutoAnalyze runs the analyzer automatically after a successful Load.
	AutoAnalyze bool `json:"autoAnalyze"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    44100,
			DefaultVolume: 1.0,
		},
		Loop: LoopConfig{
			DefaultMaxIterations: 0,
		},
		Analysis: AnalysisConfig{
			AutoAnalyze: true,
		},
	}
}

// Manager handles loading and saving configuration.
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager rooted at configDir.
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, writing out defaults on first run.
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	return m.config
}

// GetPath returns the config file path.
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update replaces the configuration and saves it.
func (m *Manager) Update(config *Config) error {
	m.config = config
	return m.Save()
}
