// Package config provides configuration loading for stemdeck.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the stemdeck configuration file structure.
type Config struct {
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// Playback
	SampleRate                 int     `json:"sample_rate" yaml:"sample_rate"`
	BufferMillis               int     `json:"buffer_millis" yaml:"buffer_millis"`
	ResampleQuality            int     `json:"resample_quality" yaml:"resample_quality"`
	CompletionToleranceSeconds float64 `json:"completion_tolerance_seconds" yaml:"completion_tolerance_seconds"`
	MuteRampMillis             int     `json:"mute_ramp_millis" yaml:"mute_ramp_millis"`
	MasterVolume               float64 `json:"master_volume" yaml:"master_volume"`
	FFTSize                    int     `json:"fft_size" yaml:"fft_size"`

	// Transcription
	TranscriptionRate        int    `json:"transcription_rate" yaml:"transcription_rate"`
	BasicPitchBinary         string `json:"basic_pitch_binary" yaml:"basic_pitch_binary"`
	TranscribeTimeoutSeconds int    `json:"transcribe_timeout_seconds" yaml:"transcribe_timeout_seconds"`

	// Separation
	SeparationModel        string `json:"separation_model" yaml:"separation_model"`
	DemucsPython           string `json:"demucs_python" yaml:"demucs_python"`
	SeparationOutputDir    string `json:"separation_output_dir,omitempty" yaml:"separation_output_dir,omitempty"`
	SeparateTimeoutSeconds int    `json:"separate_timeout_seconds" yaml:"separate_timeout_seconds"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:                   "info",
		SampleRate:                 44100,
		BufferMillis:               100,
		ResampleQuality:            4,
		CompletionToleranceSeconds: 0.1,
		MuteRampMillis:             0,
		MasterVolume:               1.0,
		FFTSize:                    2048,
		TranscriptionRate:          22050,
		BasicPitchBinary:           "basic-pitch",
		TranscribeTimeoutSeconds:   600,
		SeparationModel:            "htdemucs_6s",
		DemucsPython:               "python3",
		SeparateTimeoutSeconds:     1800,
	}
}

// ConfigDir returns the stemdeck config directory (~/.stemdeck).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".stemdeck")
}

// ConfigPath returns the path of the JSON config file (~/.stemdeck/config.json).
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads the config from ~/.stemdeck, preferring config.yaml/config.yml
// over config.json. Returns the default config if no file exists.
func Load() (*Config, error) {
	return LoadFrom(ConfigDir())
}

// LoadFrom loads the config from dir.
func LoadFrom(dir string) (*Config, error) {
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return DefaultConfig(), nil
}

// LoadFile loads one config file. The format follows the extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml %q: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("config: decode json %q: %w", path, err)
		}
	}

	config.applyDefaults()
	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return config, nil
}

// applyDefaults fills fields a file set to zero. Zero is a valid mute ramp
// and master volume, so those stay as written.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.BufferMillis == 0 {
		c.BufferMillis = d.BufferMillis
	}
	if c.ResampleQuality == 0 {
		c.ResampleQuality = d.ResampleQuality
	}
	if c.CompletionToleranceSeconds == 0 {
		c.CompletionToleranceSeconds = d.CompletionToleranceSeconds
	}
	if c.FFTSize == 0 {
		c.FFTSize = d.FFTSize
	}
	if c.TranscriptionRate == 0 {
		c.TranscriptionRate = d.TranscriptionRate
	}
	if c.BasicPitchBinary == "" {
		c.BasicPitchBinary = d.BasicPitchBinary
	}
	if c.TranscribeTimeoutSeconds == 0 {
		c.TranscribeTimeoutSeconds = d.TranscribeTimeoutSeconds
	}
	if c.SeparationModel == "" {
		c.SeparationModel = d.SeparationModel
	}
	if c.DemucsPython == "" {
		c.DemucsPython = d.DemucsPython
	}
	if c.SeparateTimeoutSeconds == 0 {
		c.SeparateTimeoutSeconds = d.SeparateTimeoutSeconds
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.SampleRate < 8000 || cfg.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate %d is out of range [8000, 192000]", cfg.SampleRate))
	}
	if cfg.BufferMillis < 1 || cfg.BufferMillis > 2000 {
		errs = append(errs, fmt.Errorf("buffer_millis %d is out of range [1, 2000]", cfg.BufferMillis))
	}
	if cfg.ResampleQuality < 1 || cfg.ResampleQuality > 64 {
		errs = append(errs, fmt.Errorf("resample_quality %d is out of range [1, 64]", cfg.ResampleQuality))
	}
	if cfg.CompletionToleranceSeconds < 0 || cfg.CompletionToleranceSeconds > 5 {
		errs = append(errs, fmt.Errorf("completion_tolerance_seconds %.3f is out of range [0, 5]", cfg.CompletionToleranceSeconds))
	}
	if cfg.MuteRampMillis < 0 {
		errs = append(errs, fmt.Errorf("mute_ramp_millis %d must not be negative", cfg.MuteRampMillis))
	}
	if cfg.MasterVolume < 0 || cfg.MasterVolume > 1 {
		errs = append(errs, fmt.Errorf("master_volume %.2f is out of range [0, 1]", cfg.MasterVolume))
	}
	if cfg.FFTSize < 32 || cfg.FFTSize > 32768 || bits.OnesCount(uint(cfg.FFTSize)) != 1 {
		errs = append(errs, fmt.Errorf("fft_size %d must be a power of two in [32, 32768]", cfg.FFTSize))
	}
	if cfg.TranscriptionRate < 8000 || cfg.TranscriptionRate > 192000 {
		errs = append(errs, fmt.Errorf("transcription_rate %d is out of range [8000, 192000]", cfg.TranscriptionRate))
	}
	if cfg.TranscribeTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("transcribe_timeout_seconds %d must not be negative", cfg.TranscribeTimeoutSeconds))
	}
	if cfg.SeparateTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("separate_timeout_seconds %d must not be negative", cfg.SeparateTimeoutSeconds))
	}

	return errors.Join(errs...)
}

// Save saves the config to ~/.stemdeck/config.json.
func Save(config *Config) error {
	return SaveTo(ConfigDir(), config)
}

// SaveTo writes config.json into dir.
func SaveTo(dir string, config *Config) error {
	return SaveFile(filepath.Join(dir, "config.json"), config)
}

// SaveFile writes config to path, as YAML for .yaml/.yml and JSON otherwise.
func SaveFile(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// YAML renders the config as YAML, for display.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Config) BufferDuration() time.Duration {
	return time.Duration(c.BufferMillis) * time.Millisecond
}

func (c *Config) MuteRamp() time.Duration {
	return time.Duration(c.MuteRampMillis) * time.Millisecond
}

func (c *Config) TranscribeTimeout() time.Duration {
	return time.Duration(c.TranscribeTimeoutSeconds) * time.Second
}

func (c *Config) SeparateTimeout() time.Duration {
	return time.Duration(c.SeparateTimeoutSeconds) * time.Second
}
