package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags. Relative
// paths in a config file resolve against the file's directory; paths given
// by flags resolve against the working directory.
func Load() (*Config, error) {
	cfg := Default()

	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)
	normalize(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./blockforge.yaml",
		"./config.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory. The project store
// lives here unless persistence.path says otherwise.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Blockforge")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Blockforge")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "blockforge")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "blockforge")
	}
}

// loadFromFile merges a YAML file over cfg. Unknown keys are rejected so a
// misspelt engine setting does not silently fall back to its default.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	cfg.Source = path
	resolvePaths(cfg, filepath.Dir(path))
	return nil
}

// resolvePaths anchors the file-valued settings at dir.
func resolvePaths(cfg *Config, dir string) {
	for _, p := range []*string{
		&cfg.Persistence.Path,
		&cfg.Import.RulesFile,
		&cfg.Blocks.CatalogFile,
		&cfg.Logging.LogFile,
	} {
		*p = resolvePath(*p, dir)
	}
}

func resolvePath(p, dir string) string {
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// backendAliases maps accepted spellings to persistence backend kinds.
var backendAliases = map[string]string{
	"badger":   "badger",
	"badgerdb": "badger",
	"sqlite":   "sqlite",
	"sqlite3":  "sqlite",
}

// normalize canonicalizes values that have more than one accepted spelling.
func normalize(cfg *Config) {
	b := strings.ToLower(strings.TrimSpace(cfg.Persistence.Backend))
	if kind, ok := backendAliases[b]; ok {
		b = kind
	}
	cfg.Persistence.Backend = b
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
}
