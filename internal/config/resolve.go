package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPaths returns the search order for config files.
func DefaultConfigPaths() []string {
	paths := []string{"seeflaw.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "seeflaw", "config.yaml"))
	}
	paths = append(paths, "/etc/seeflaw/config.yaml")
	return paths
}

// Resolve loads the config from the given explicit path, or searches the
// default locations. Without an explicit path and with no file found it
// returns an empty config; SeeFlaw runs fine on arguments alone.
func Resolve(explicit string) (*Config, string, error) {
	path, err := findConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return &Config{}, "", nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func findConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// RunArguments merges the configured arguments under cli and adds the
// option fields not already given. CLI values win.
func (c *Config) RunArguments(cli map[string]string) map[string]string {
	args := make(map[string]string, len(c.Arguments)+len(cli)+3)
	for k, v := range c.Arguments {
		args[k] = v
	}
	setIf := func(k, v string) {
		if v != "" {
			args[k] = v
		}
	}
	setIf("pluginpath", c.PluginPath)
	setIf("precase", c.PreCase)
	setIf("postcase", c.PostCase)
	for k, v := range cli {
		args[k] = v
	}
	return args
}

// FixtureTimeout returns the default exec fixture timeout, or 0.
func (c *Config) FixtureTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}
