// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Detect   DetectConfig   `toml:"detect"`
	Channels ChannelsConfig `toml:"channels"`
	History  HistoryConfig  `toml:"history"`
	Plot     PlotConfig     `toml:"plot"`
}

// DetectConfig maps outlier detection settings.
type DetectConfig struct {
	Exclude   *[]string `toml:"exclude"`
	IQRK      *float64  `toml:"iqr-k"`
	TrgIDDiff *float64  `toml:"trgid-diff"`
	TSDiff    *float64  `toml:"ts-diff"`
}

// ChannelsConfig maps channel range settings.
type ChannelsConfig struct {
	Max *int `toml:"max"`
}

// HistoryConfig maps run history settings.
type HistoryConfig struct {
	Enabled *bool `toml:"enabled"`
}

// PlotConfig maps PNG plot settings.
type PlotConfig struct {
	Dir *string `toml:"dir"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
