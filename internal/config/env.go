package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of path overrides, e.g. DT5202FIX_CONFIG.
const EnvPrefix = "DT5202FIX"

// Paths are the resolved file locations of the tool.
type Paths struct {
	Config string `envconfig:"CONFIG"`
	DB     string `envconfig:"DB"`
}

// ResolvePaths applies DT5202FIX_CONFIG and DT5202FIX_DB over the XDG defaults.
func ResolvePaths() (Paths, error) {
	var p Paths
	if err := envconfig.Process(EnvPrefix, &p); err != nil {
		return Paths{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if p.Config == "" {
		p.Config = DefaultConfigPath()
	}
	if p.DB == "" {
		p.DB = DefaultDBPath()
	}
	return p, nil
}
