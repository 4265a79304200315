package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the densify configuration file
// ($XDG_CONFIG_HOME/densify/config.yaml). Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	Backend     string  `yaml:"backend"`
	MemoryLimit *uint64 `yaml:"memory_limit"`
	Verbosity   *int    `yaml:"verbosity"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "densify", "config.yaml")
}

// loadConfig reads the config file at path. A missing file yields a zero
// Config unless required is set.
func loadConfig(path string, required bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return Config{}, nil
		}
		return Config{}, errors.Wrap(err, "reading config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// applyConfig fills opts from cfg where the corresponding flag was not
// given on the command line.
func applyConfig(c *cli.Command, cfg Config, opts *runOptions) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		opts.backend = cfg.Backend
	}
	if cfg.MemoryLimit != nil && !c.IsSet("memory-limit") {
		opts.memoryLimit = *cfg.MemoryLimit
	}
	if cfg.Verbosity != nil && !c.IsSet("verbosity") {
		opts.verbosity = *cfg.Verbosity
	}
}
