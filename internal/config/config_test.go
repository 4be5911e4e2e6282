package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test graphics defaults
	if cfg.Graphics.Width != 1280 {
		t.Errorf("expected width 1280, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 720 {
		t.Errorf("expected height 720, got %d", cfg.Graphics.Height)
	}
	if cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be false by default")
	}

	// Test engine defaults
	if cfg.Engine.ViewDistance != 96 {
		t.Errorf("expected view distance 96, got %d", cfg.Engine.ViewDistance)
	}
	if cfg.Engine.SelectionDistance != 64 {
		t.Errorf("expected selection distance 64, got %d", cfg.Engine.SelectionDistance)
	}
	if !cfg.Engine.GreedyMeshing || !cfg.Engine.Instancing || !cfg.Engine.OcclusionCulling {
		t.Error("expected greedy meshing, instancing and occlusion culling enabled by default")
	}
	if cfg.Engine.OcclusionThreshold != 1.0 {
		t.Errorf("expected occlusion threshold 1.0, got %v", cfg.Engine.OcclusionThreshold)
	}

	// Test history defaults
	if cfg.History.MaxBatches != 128 {
		t.Errorf("expected 128 history batches, got %d", cfg.History.MaxBatches)
	}
	if cfg.History.MaxBytes != 32<<20 {
		t.Errorf("expected 32MiB history, got %d", cfg.History.MaxBytes)
	}

	// Test persistence defaults
	if cfg.Persistence.Backend != "badger" {
		t.Errorf("expected badger backend, got %s", cfg.Persistence.Backend)
	}
	if cfg.Persistence.AutoSaveInterval != 5*time.Minute {
		t.Errorf("expected autosave every 5m, got %v", cfg.Persistence.AutoSaveInterval)
	}
	if cfg.Persistence.MaxFlushRetries != 3 {
		t.Errorf("expected 3 flush retries, got %d", cfg.Persistence.MaxFlushRetries)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1920
  height: 1080
  fullscreen: true
  vsync: false
  fps_limit: 144
  msaa: 8

engine:
  view_distance: 160
  greedy_meshing: false
  occlusion_threshold: 0.5
  world_limit:
    min: [-64, 0, -64]
    max: [63, 255, 63]

history:
  max_batches: 16

persistence:
  backend: sqlite
  path: /tmp/projects.db
  autosave_interval: 30s

telemetry:
  metrics_addr: "127.0.0.1:9102"

logging:
  level: "debug"
  log_file: "editor.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Load config
	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Verify values were loaded
	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920, got %d", cfg.Graphics.Width)
	}
	if !cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be true")
	}
	if cfg.Graphics.FPSLimit != 144 {
		t.Errorf("expected fps limit 144, got %d", cfg.Graphics.FPSLimit)
	}
	if cfg.Graphics.MSAA != 8 {
		t.Errorf("expected msaa 8, got %d", cfg.Graphics.MSAA)
	}

	if cfg.Engine.ViewDistance != 160 {
		t.Errorf("expected view distance 160, got %d", cfg.Engine.ViewDistance)
	}
	if cfg.Engine.GreedyMeshing {
		t.Error("expected greedy meshing to be false")
	}
	if !cfg.Engine.Instancing {
		t.Error("instancing should keep its default when absent from the file")
	}
	if cfg.Engine.OcclusionThreshold != 0.5 {
		t.Errorf("expected occlusion threshold 0.5, got %v", cfg.Engine.OcclusionThreshold)
	}
	if cfg.Engine.WorldLimit.Max != [3]int{63, 255, 63} {
		t.Errorf("expected world limit max 63,255,63, got %v", cfg.Engine.WorldLimit.Max)
	}

	if cfg.History.MaxBatches != 16 {
		t.Errorf("expected 16 history batches, got %d", cfg.History.MaxBatches)
	}
	if cfg.History.MaxBytes != 32<<20 {
		t.Errorf("history bytes should keep its default, got %d", cfg.History.MaxBytes)
	}

	if cfg.Persistence.Backend != "sqlite" {
		t.Errorf("expected sqlite backend, got %s", cfg.Persistence.Backend)
	}
	if cfg.Persistence.StorePath() != "/tmp/projects.db" {
		t.Errorf("expected explicit store path, got %s", cfg.Persistence.StorePath())
	}
	if cfg.Persistence.AutoSaveInterval != 30*time.Second {
		t.Errorf("expected autosave interval 30s, got %v", cfg.Persistence.AutoSaveInterval)
	}

	if cfg.Telemetry.MetricsAddr != "127.0.0.1:9102" {
		t.Errorf("expected metrics addr, got %s", cfg.Telemetry.MetricsAddr)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if want := filepath.Join(tmpDir, "editor.log"); cfg.Logging.LogFile != want {
		t.Errorf("expected log file %s, got %s", want, cfg.Logging.LogFile)
	}
	if cfg.Source != configPath {
		t.Errorf("expected source %s, got %s", configPath, cfg.Source)
	}
}

func TestLoadFromFileUnknownKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("engine:\n  view_distnce: 32\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	err := loadFromFile(cfg, configPath)
	if err == nil || !strings.Contains(err.Error(), "view_distnce") {
		t.Errorf("expected error naming the misspelt key, got %v", err)
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, nil, 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if cfg.Engine.ViewDistance != 96 {
		t.Errorf("defaults lost: view distance %d", cfg.Engine.ViewDistance)
	}
}

func TestResolvePaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	dir := filepath.Join(string(filepath.Separator), "srv", "forge")
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"projects", filepath.Join(dir, "projects")},
		{"../rules.yaml", filepath.Join(string(filepath.Separator), "srv", "rules.yaml")},
		{"~/catalog.yaml", filepath.Join(home, "catalog.yaml")},
		{filepath.Join(string(filepath.Separator), "var", "lib", "forge.db"), filepath.Join(string(filepath.Separator), "var", "lib", "forge.db")},
	}
	for _, tt := range tests {
		if got := resolvePath(tt.in, dir); got != tt.want {
			t.Errorf("resolvePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	cfg := Default()
	cfg.Persistence.Path = "store"
	cfg.Import.RulesFile = "rules.yaml"
	cfg.Blocks.CatalogFile = "blocks.yaml"
	resolvePaths(cfg, dir)
	for _, got := range []string{cfg.Persistence.Path, cfg.Import.RulesFile, cfg.Blocks.CatalogFile} {
		if filepath.Dir(got) != dir {
			t.Errorf("%s not anchored at %s", got, dir)
		}
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("empty log file became %q", cfg.Logging.LogFile)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		backend, want string
	}{
		{"badger", "badger"},
		{" BadgerDB ", "badger"},
		{"SQLite", "sqlite"},
		{"sqlite3", "sqlite"},
		{"leveldb", "leveldb"},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Persistence.Backend = tt.backend
		cfg.Logging.Level = "WARN"
		normalize(cfg)
		if cfg.Persistence.Backend != tt.want {
			t.Errorf("backend %q normalized to %q, want %q", tt.backend, cfg.Persistence.Backend, tt.want)
		}
		if cfg.Logging.Level != "warn" {
			t.Errorf("level normalized to %q", cfg.Logging.Level)
		}
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	// Create temporary config file with invalid YAML
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
graphics:
  width: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Try to load - should error
	cfg := Default()
	err := loadFromFile(cfg, configPath)
	if err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	err := loadFromFile(cfg, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"odd msaa", func(c *Config) { c.Graphics.MSAA = 3 }, "graphics.msaa"},
		{"zero view distance", func(c *Config) { c.Engine.ViewDistance = 0 }, "view_distance"},
		{"threshold above one", func(c *Config) { c.Engine.OcclusionThreshold = 1.5 }, "occlusion_threshold"},
		{"inverted world limit", func(c *Config) { c.Engine.WorldLimit.Min[1] = 2048 }, "world_limit"},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "leveldb" }, "backend"},
		{"world limit beyond float precision", func(c *Config) { c.Engine.WorldLimit.Max[0] = MaxWorldCoord + 1 }, "world_limit"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"autosave without interval", func(c *Config) { c.Persistence.AutoSaveInterval = 0 }, "autosave_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestStorePathDefaults(t *testing.T) {
	p := Default().Persistence
	if got := p.StorePath(); filepath.Dir(got) != ConfigDir() || filepath.Base(got) != "projects" {
		t.Errorf("badger store path = %s", got)
	}
	p.Backend = "sqlite"
	if got := p.StorePath(); filepath.Base(got) != "projects.db" {
		t.Errorf("sqlite store path = %s", got)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Engine.ViewDistance = 48
	cfg.Persistence.Backend = "sqlite"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Engine.ViewDistance != 48 || loaded.Persistence.Backend != "sqlite" {
		t.Errorf("reloaded config = %+v", loaded.Engine)
	}
	if loaded.Persistence.AutoSaveInterval != 5*time.Minute {
		t.Errorf("autosave interval lost in round trip: %v", loaded.Persistence.AutoSaveInterval)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Just verify it returns a non-empty path
	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}

	// Verify path is absolute
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	// Save current directory
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	// Create temp directory and change to it
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	// No config file exists - should return empty
	path := findConfigFile()
	if path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	// Create config.yaml in current directory
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("graphics:\n  width: 800\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	// Should find it now
	path = findConfigFile()
	if path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name: "debug flag",
			setup: func() {
				*flagDebug = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
				if !cfg.Telemetry.ShowOverlay {
					t.Error("expected overlay to be enabled with debug flag")
				}
			},
			teardown: func() {
				*flagDebug = false
			},
		},
		{
			name: "project and backend flags",
			setup: func() {
				*flagProject = "2b1f6a3e-0000-4000-8000-000000000000"
				*flagBackend = "sqlite"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Persistence.Project != "2b1f6a3e-0000-4000-8000-000000000000" {
					t.Errorf("expected project from flag, got %s", cfg.Persistence.Project)
				}
				if cfg.Persistence.Backend != "sqlite" {
					t.Errorf("expected sqlite backend, got %s", cfg.Persistence.Backend)
				}
			},
			teardown: func() {
				*flagProject = ""
				*flagBackend = ""
			},
		},
		{
			name: "view distance flag",
			setup: func() {
				*flagViewDistance = 256
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Engine.ViewDistance != 256 {
					t.Errorf("expected view distance 256, got %d", cfg.Engine.ViewDistance)
				}
			},
			teardown: func() {
				*flagViewDistance = 0
			},
		},
		{
			name: "windowed flag",
			setup: func() {
				*flagWindowed = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be false with windowed flag")
				}
			},
			teardown: func() {
				*flagWindowed = false
			},
		},
		{
			name: "fullscreen flag",
			setup: func() {
				*flagFullscreen = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be true with fullscreen flag")
				}
			},
			teardown: func() {
				*flagFullscreen = false
			},
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Width != 2560 {
					t.Errorf("expected width 2560, got %d", cfg.Graphics.Width)
				}
				if cfg.Graphics.Height != 1440 {
					t.Errorf("expected height 1440, got %d", cfg.Graphics.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			tt.setup()
			defer tt.teardown()

			// Apply flags to default config
			cfg := Default()
			applyFlags(cfg)

			// Verify
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1600
  height: 900
engine:
  view_distance: 64
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Set flag to override config file
	*flagConfig = configPath
	*flagWidth = 1920
	*flagViewDistance = 128
	defer func() {
		*flagConfig = ""
		*flagWidth = 0
		*flagViewDistance = 0
	}()

	// Load config
	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Width should be from flag (1920), not file (1600)
	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Graphics.Width)
	}

	// Height should be from file (900) since no flag override
	if cfg.Graphics.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Graphics.Height)
	}

	if cfg.Engine.ViewDistance != 128 {
		t.Errorf("expected view distance 128 from flag, got %d", cfg.Engine.ViewDistance)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("persistence:\n  backend: leveldb\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	if _, err := Load(); err == nil {
		t.Error("expected Load to reject an unknown backend")
	}
}

func TestLoadResolvesBackendAndPaths(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "blockforge.yaml")
	yamlContent := `
persistence:
  backend: SQLite3
  path: data/projects.db
engine:
  world_limit:
    min: [-512, -64, -512]
    max: [511, 319, 511]
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Persistence.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", cfg.Persistence.Backend)
	}
	if want := filepath.Join(dir, "data", "projects.db"); cfg.Persistence.StorePath() != want {
		t.Errorf("store path = %s, want %s", cfg.Persistence.StorePath(), want)
	}
	if cfg.Engine.WorldLimit.Min != [3]int{-512, -64, -512} {
		t.Errorf("world limit min = %v", cfg.Engine.WorldLimit.Min)
	}
}

func TestLoadRejectsWorldLimitOutOfRange(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := "engine:\n  world_limit:\n    min: [0, 0, -20000000]\n    max: [15, 15, 15]\n"
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "axis 2") {
		t.Errorf("expected world limit error on axis 2, got %v", err)
	}
}
