package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v4"
)

const (
	DefaultMethod       = MethodGet
	DefaultVirtualUsers = 100
	DefaultDuration     = "30s"
	DefaultRampUp       = "5s"
)

// Load reads one or more test configs from a JSON or YAML file. The document is either a single
// config or an object with a "tests" list.
func Load(filename string) ([]TestConfig, error) {
	data, err := os.ReadFile(filename) //nolint:gosec // config file path is controlled
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	var unmarshal func([]byte, any) error
	switch ext {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return parse(data, unmarshal)
}

// Parse decodes a JSON document the same way Load does for .json files.
func Parse(data []byte) ([]TestConfig, error) {
	return parse(data, json.Unmarshal)
}

func parse(data []byte, unmarshal func([]byte, any) error) ([]TestConfig, error) {
	var doc fileDocument
	if err := unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	tests := doc.Tests
	if len(tests) == 0 {
		var single TestConfig
		if err := unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		tests = []TestConfig{single}
	}

	for i := range tests {
		if err := ApplyDefaults(&tests[i]); err != nil {
			return nil, fmt.Errorf("test[%d]: %w", i, err)
		}
		if err := tests[i].Validate(); err != nil {
			return nil, fmt.Errorf("test[%d]: %w", i, err)
		}
	}

	return tests, nil
}

// ApplyDefaults fills the fields a config file or command line may leave out.
func ApplyDefaults(cfg *TestConfig) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return errors.New("url is required")
	}

	if strings.TrimSpace(string(cfg.Method)) == "" {
		cfg.Method = DefaultMethod
	}
	cfg.Method = Method(strings.ToUpper(strings.TrimSpace(string(cfg.Method))))

	if cfg.VirtualUsers == 0 {
		cfg.VirtualUsers = DefaultVirtualUsers
	}
	if strings.TrimSpace(cfg.Duration) == "" {
		cfg.Duration = DefaultDuration
	}
	if strings.TrimSpace(cfg.RampUp) == "" {
		cfg.RampUp = DefaultRampUp
	}

	return nil
}
