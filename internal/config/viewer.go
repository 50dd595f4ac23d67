package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/sortingview/internal/fsutil"
)

// ViewerConfig is the root configuration for the sortingview service.
// Every field is optional; the Get* methods supply defaults for omitted
// fields so partial files are safe.
type ViewerConfig struct {
	// Server
	Listen *string `json:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty"`

	// Task service
	Workers      *int    `json:"workers,omitempty"`
	TaskTimeout  *string `json:"task_timeout,omitempty"`  // duration string like "10m"
	FetchTimeout *string `json:"fetch_timeout,omitempty"` // external metrics fetch, e.g. "30s"
	// ErrorRetryDelay is how long a failed task's error is reported before
	// the same submission runs it again.
	ErrorRetryDelay *string `json:"error_retry_delay,omitempty"`
	// MetricsDirs restricts file:// unit metrics URIs to these directories.
	MetricsDirs []string `json:"metrics_dirs,omitempty"`

	// Snippet precompute
	SnippetBeforeFrames *int `json:"snippet_before_frames,omitempty"`
	SnippetAfterFrames  *int `json:"snippet_after_frames,omitempty"`
	MaxSnippetsPerUnit  *int `json:"max_snippets_per_unit,omitempty"`

	// Unit metrics
	RefractoryPeriodMs *float64 `json:"refractory_period_ms,omitempty"`
	MatchToleranceMs   *float64 `json:"match_tolerance_ms,omitempty"`

	// Preload overlay geometry
	OverlayWidth  *int `json:"overlay_width,omitempty"`
	OverlayHeight *int `json:"overlay_height,omitempty"`
}

// LoadViewerConfig loads a ViewerConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadViewerConfig(path string) (*ViewerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	const maxFileSize = 1 * 1024 * 1024
	data, err := fsutil.ReadFileLimited(fsutil.OSFileSystem{}, cleanPath, maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ViewerConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ViewerConfig) Validate() error {
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	for name, v := range map[string]*string{
		"task_timeout":      c.TaskTimeout,
		"fetch_timeout":     c.FetchTimeout,
		"error_retry_delay": c.ErrorRetryDelay,
	} {
		if v == nil || *v == "" {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
	}
	for i, dir := range c.MetricsDirs {
		if dir == "" {
			return fmt.Errorf("metrics_dirs[%d] is empty", i)
		}
	}
	if c.SnippetBeforeFrames != nil && *c.SnippetBeforeFrames < 0 {
		return fmt.Errorf("snippet_before_frames must be non-negative, got %d", *c.SnippetBeforeFrames)
	}
	if c.SnippetAfterFrames != nil && *c.SnippetAfterFrames < 1 {
		return fmt.Errorf("snippet_after_frames must be positive, got %d", *c.SnippetAfterFrames)
	}
	if c.MaxSnippetsPerUnit != nil && *c.MaxSnippetsPerUnit < 1 {
		return fmt.Errorf("max_snippets_per_unit must be positive, got %d", *c.MaxSnippetsPerUnit)
	}
	if c.RefractoryPeriodMs != nil && *c.RefractoryPeriodMs <= 0 {
		return fmt.Errorf("refractory_period_ms must be positive, got %f", *c.RefractoryPeriodMs)
	}
	if c.MatchToleranceMs != nil && *c.MatchToleranceMs <= 0 {
		return fmt.Errorf("match_tolerance_ms must be positive, got %f", *c.MatchToleranceMs)
	}
	if c.OverlayWidth != nil && *c.OverlayWidth < 0 {
		return fmt.Errorf("overlay_width must be non-negative, got %d", *c.OverlayWidth)
	}
	if c.OverlayHeight != nil && *c.OverlayHeight < 0 {
		return fmt.Errorf("overlay_height must be non-negative, got %d", *c.OverlayHeight)
	}
	return nil
}

// GetListen returns the HTTP listen address or the default.
func (c *ViewerConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetDBPath returns the sqlite database path or the default.
func (c *ViewerConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "sortingview.db"
	}
	return *c.DBPath
}

// GetWorkers returns the task worker count or the default.
func (c *ViewerConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetTaskTimeout returns the per-task timeout or the default.
func (c *ViewerConfig) GetTaskTimeout() time.Duration {
	return parseDurationOr(c.TaskTimeout, 10*time.Minute)
}

// GetFetchTimeout returns the external metrics fetch timeout or the default.
func (c *ViewerConfig) GetFetchTimeout() time.Duration {
	return parseDurationOr(c.FetchTimeout, 30*time.Second)
}

// GetErrorRetryDelay returns how long errored tasks are kept before a
// resubmission retries them.
func (c *ViewerConfig) GetErrorRetryDelay() time.Duration {
	return parseDurationOr(c.ErrorRetryDelay, time.Minute)
}

// GetMetricsDirs returns the directories file:// unit metrics may be read
// from. Empty means unrestricted.
func (c *ViewerConfig) GetMetricsDirs() []string {
	return c.MetricsDirs
}

// GetSnippetBeforeFrames returns the number of frames kept before each event.
func (c *ViewerConfig) GetSnippetBeforeFrames() int {
	if c.SnippetBeforeFrames == nil {
		return 20
	}
	return *c.SnippetBeforeFrames
}

// GetSnippetAfterFrames returns the number of frames kept from each event on.
func (c *ViewerConfig) GetSnippetAfterFrames() int {
	if c.SnippetAfterFrames == nil {
		return 20
	}
	return *c.SnippetAfterFrames
}

// GetMaxSnippetsPerUnit returns the snippet cap per unit or the default.
func (c *ViewerConfig) GetMaxSnippetsPerUnit() int {
	if c.MaxSnippetsPerUnit == nil {
		return 1000
	}
	return *c.MaxSnippetsPerUnit
}

// GetRefractoryPeriodMs returns the ISI violation threshold or the default.
func (c *ViewerConfig) GetRefractoryPeriodMs() float64 {
	if c.RefractoryPeriodMs == nil {
		return 1.5
	}
	return *c.RefractoryPeriodMs
}

// GetMatchToleranceMs returns the cross-sorting event match window or the default.
func (c *ViewerConfig) GetMatchToleranceMs() float64 {
	if c.MatchToleranceMs == nil {
		return 0.5
	}
	return *c.MatchToleranceMs
}

// GetOverlayWidth returns the preload overlay width or the default.
func (c *ViewerConfig) GetOverlayWidth() int {
	if c.OverlayWidth == nil {
		return 800
	}
	return *c.OverlayWidth
}

// GetOverlayHeight returns the preload overlay height or the default.
func (c *ViewerConfig) GetOverlayHeight() int {
	if c.OverlayHeight == nil {
		return 600
	}
	return *c.OverlayHeight
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
