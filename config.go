package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	defaultMapFileURL = "https://raw.githubusercontent.com/intel/perfmon/main/mapfile.csv"
	defaultBaseURL    = "https://raw.githubusercontent.com/intel/perfmon/main"
	defaultTimeout    = 60 * time.Second
	defaultUserAgent  = "pmu-query"

	// configEnv names the config file when --config is not given. There is
	// no other discovery.
	configEnv = "PMU_QUERY_CONFIG"
)

// config holds everything that can be changed without touching the code.
// A zero value is not usable; start from defaultConfig.
type config struct {
	MapFileURL string           `yaml:"mapfile_url"`
	BaseURL    string           `yaml:"base_url"`
	Timeout    time.Duration    `yaml:"timeout"`
	UserAgent  string           `yaml:"user_agent"`
	Identifier identifierConfig `yaml:"identifier"`
}

type identifierConfig struct {
	// Strategy forces a row of the identifier table ("linux", "builtin",
	// ...). Empty selects by host platform.
	Strategy string `yaml:"strategy"`

	// Command replaces the helper argv; the first element is looked up
	// on PATH.
	Command []string `yaml:"command"`
}

func defaultConfig() config {
	return config{
		MapFileURL: defaultMapFileURL,
		BaseURL:    defaultBaseURL,
		Timeout:    defaultTimeout,
		UserAgent:  defaultUserAgent,
	}
}

// loadConfig reads path (or $PMU_QUERY_CONFIG when path is empty) over the
// defaults. With neither set the defaults are returned as is.
func loadConfig(fs afero.Fs, path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if cfg.MapFileURL == "" || cfg.BaseURL == "" {
		return cfg, errors.Errorf("config %s: mapfile_url and base_url must not be empty", path)
	}
	if cfg.Timeout < 0 {
		return cfg, errors.Errorf("config %s: negative timeout %s", path, cfg.Timeout)
	}
	return cfg, nil
}
