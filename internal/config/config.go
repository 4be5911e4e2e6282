// Package config handles editor configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config holds all editor settings.
type Config struct {
	Graphics    GraphicsConfig    `yaml:"graphics"`
	Engine      EngineConfig      `yaml:"engine"`
	History     HistoryConfig     `yaml:"history"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Import      ImportConfig      `yaml:"import"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Blocks      BlocksConfig      `yaml:"blocks"`
	Logging     LoggingConfig     `yaml:"logging"`

	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	FPSLimit   int  `yaml:"fps_limit"`
	MSAA       int  `yaml:"msaa"` // samples: 0, 2, 4 or 8
}

// EngineConfig holds terrain engine tunables.
type EngineConfig struct {
	ViewDistance       int              `yaml:"view_distance"`      // blocks
	SelectionDistance  int              `yaml:"selection_distance"` // blocks
	GreedyMeshing      bool             `yaml:"greedy_meshing"`
	Instancing         bool             `yaml:"instancing"`
	OcclusionCulling   bool             `yaml:"occlusion_culling"`
	OcclusionThreshold float32          `yaml:"occlusion_threshold"`
	MaxMeshesPerFrame  int              `yaml:"max_meshes_per_frame"`
	WorldLimit         WorldLimitConfig `yaml:"world_limit"`
}

// WorldLimitConfig bounds editable block coordinates, inclusive.
type WorldLimitConfig struct {
	Min [3]int `yaml:"min"`
	Max [3]int `yaml:"max"`
}

// HistoryConfig bounds the undo stack.
type HistoryConfig struct {
	MaxBatches int   `yaml:"max_batches"`
	MaxBytes   int64 `yaml:"max_bytes"`
}

// PersistenceConfig selects the project store.
type PersistenceConfig struct {
	Backend          string        `yaml:"backend"` // badger or sqlite
	Path             string        `yaml:"path"`
	Project          string        `yaml:"project"`
	AutoSave         bool          `yaml:"autosave"`
	AutoSaveInterval time.Duration `yaml:"autosave_interval"`
	MaxFlushRetries  int           `yaml:"max_flush_retries"`
}

// ImportConfig holds world import settings.
type ImportConfig struct {
	RulesFile string `yaml:"rules_file"`
}

// TelemetryConfig holds debug statistics settings.
type TelemetryConfig struct {
	MetricsAddr string        `yaml:"metrics_addr"` // empty disables /metrics
	Window      time.Duration `yaml:"window"`
	ShowOverlay bool          `yaml:"show_overlay"`
}

// BlocksConfig points at an optional block catalog.
type BlocksConfig struct {
	CatalogFile string `yaml:"catalog_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// MaxWorldCoord bounds world_limit on every axis. Mesh vertices are float32,
// which stops resolving whole blocks past 2^24.
const MaxWorldCoord = 1 << 24

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FPSLimit:   0,
			MSAA:       4,
		},
		Engine: EngineConfig{
			ViewDistance:       96,
			SelectionDistance:  64,
			GreedyMeshing:      true,
			Instancing:         true,
			OcclusionCulling:   true,
			OcclusionThreshold: 1.0,
			MaxMeshesPerFrame:  8,
			WorldLimit: WorldLimitConfig{
				Min: [3]int{-1 << 20, -1024, -1 << 20},
				Max: [3]int{1<<20 - 1, 1023, 1<<20 - 1},
			},
		},
		History: HistoryConfig{
			MaxBatches: 128,
			MaxBytes:   32 << 20,
		},
		Persistence: PersistenceConfig{
			Backend:          "badger",
			AutoSave:         true,
			AutoSaveInterval: 5 * time.Minute,
			MaxFlushRetries:  3,
		},
		Telemetry: TelemetryConfig{
			Window: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// StorePath returns the configured store path, or one under ConfigDir.
func (p PersistenceConfig) StorePath() string {
	if p.Path != "" {
		return p.Path
	}
	if p.Backend == "sqlite" {
		return filepath.Join(ConfigDir(), "projects.db")
	}
	return filepath.Join(ConfigDir(), "projects")
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Graphics.MSAA {
	case 0, 2, 4, 8:
	default:
		errs = append(errs, fmt.Errorf("graphics.msaa must be 0, 2, 4 or 8, got %d", c.Graphics.MSAA))
	}
	if c.Engine.ViewDistance <= 0 {
		errs = append(errs, fmt.Errorf("engine.view_distance must be positive, got %d", c.Engine.ViewDistance))
	}
	if c.Engine.SelectionDistance <= 0 {
		errs = append(errs, fmt.Errorf("engine.selection_distance must be positive, got %d", c.Engine.SelectionDistance))
	}
	if t := c.Engine.OcclusionThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("engine.occlusion_threshold must be within [0,1], got %v", t))
	}
	for i := 0; i < 3; i++ {
		if c.Engine.WorldLimit.Min[i] > c.Engine.WorldLimit.Max[i] {
			errs = append(errs, fmt.Errorf("engine.world_limit: min[%d] > max[%d]", i, i))
		}
		if l := c.Engine.WorldLimit; l.Min[i] < -MaxWorldCoord || l.Max[i] > MaxWorldCoord {
			errs = append(errs, fmt.Errorf("engine.world_limit: axis %d exceeds %d in magnitude", i, MaxWorldCoord))
		}
	}
	switch c.Persistence.Backend {
	case "badger", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("persistence.backend must be badger or sqlite, got %q", c.Persistence.Backend))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	if c.Persistence.AutoSave && c.Persistence.AutoSaveInterval <= 0 {
		errs = append(errs, errors.New("persistence.autosave_interval must be positive"))
	}
	return errors.Join(errs...)
}
