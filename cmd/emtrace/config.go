package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the defaults a ".emtrace.yaml" file (or --config path) may
// supply. Fields left zero-valued fall through to the environment
// variable, then the compiled-in default.
type Config struct {
	Input       string `yaml:"input"`
	SectionName string `yaml:"section_name"`
	WithSrcLoc  string `yaml:"with_src_loc"`
	PtrSize     int    `yaml:"ptr_size"`
	DumpInput   string `yaml:"dump_input"`
	Test        bool   `yaml:"test"`
	TestSection string `yaml:"test_section"`
}

// loadConfig reads and unmarshals a YAML defaults file at path. A missing
// file is not an error; it simply yields a zero-valued Config so every
// field falls through to its environment/default resolution.
func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// resolveString returns the first non-empty of: the CLI-supplied value (if
// explicit is true), the config-file value, the EMTRACE_<name> environment
// variable, then def.
func resolveString(explicit bool, cliValue, configValue, envName, def string) string {
	if explicit && cliValue != "" {
		return cliValue
	}
	if configValue != "" {
		return configValue
	}
	if v := env.Str("EMTRACE_"+envName, ""); v != "" {
		return v
	}
	return def
}

// resolveInt is resolveString's numeric counterpart; a malformed
// environment value is ignored rather than treated as fatal.
func resolveInt(explicit bool, cliValue, configValue int, envName string, def int) int {
	if explicit && cliValue != 0 {
		return cliValue
	}
	if configValue != 0 {
		return configValue
	}
	if raw := env.Str("EMTRACE_"+envName, ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}
