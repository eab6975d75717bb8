package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var userHomeDir = os.UserHomeDir

// SetUserHomeDirForTest overrides the home directory resolver.
// It returns a restore function to reset the original resolver.
func SetUserHomeDirForTest(fn func() (string, error)) func() {
	orig := userHomeDir
	userHomeDir = fn
	return func() {
		userHomeDir = orig
	}
}

func LoadGlobalConfig() (RawConfig, bool, error) {
	home, err := userHomeDir()
	if err != nil || home == "" {
		return RawConfig{}, false, nil
	}
	return LoadFile(filepath.Join(home, ".milestone", "config.json"))
}

func LoadProjectConfig(projectRoot string) (RawConfig, bool, error) {
	if projectRoot == "" {
		return RawConfig{}, false, nil
	}
	return LoadFile(filepath.Join(projectRoot, ".milestone", "config.json"))
}

// LoadConfig reads global and project configs and returns the resolved config.
// Precedence per key: project > global > defaults.
func LoadConfig(projectRoot string) (ResolvedConfig, error) {
	globalCfg, _, err := LoadGlobalConfig()
	if err != nil {
		return ResolvedConfig{}, err
	}
	projectCfg, _, err := LoadProjectConfig(projectRoot)
	if err != nil {
		return ResolvedConfig{}, err
	}
	return ResolveConfig(projectCfg, globalCfg), nil
}

// LoadFile reads one config file. A missing file is not an error; the
// boolean reports whether the file existed.
func LoadFile(path string) (RawConfig, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RawConfig{}, false, nil
		}
		return RawConfig{}, false, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()

	var cfg RawConfig
	if err := dec.Decode(&cfg); err != nil {
		return RawConfig{}, true, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return RawConfig{}, true, fmt.Errorf("parse config %s: trailing data", path)
	}
	if cfg.SchemaVersion != nil && *cfg.SchemaVersion != SchemaVersion {
		return RawConfig{}, true, fmt.Errorf("config %s: unsupported schemaVersion %d", path, *cfg.SchemaVersion)
	}
	return cfg, true, nil
}
