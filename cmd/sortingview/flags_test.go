package main

import (
	"testing"

	"github.com/banshee-data/sortingview/internal/config"
)

func TestFlagDefaults(t *testing.T) {
	if configPath == nil || *configPath != "" {
		t.Errorf("expected empty -config default")
	}
	if listen == nil || *listen != "" {
		t.Errorf("expected empty -listen default so the config value wins")
	}
	if workers == nil || *workers != 0 {
		t.Errorf("expected -workers default 0")
	}
	if verbose == nil || *verbose {
		t.Errorf("expected -verbose default false")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	fileListen := ":9000"
	fileWorkers := 8

	tests := []struct {
		name        string
		listen      string
		dbPath      string
		workers     int
		wantListen  string
		wantDB      string
		wantWorkers int
	}{
		{
			name:        "no flags keeps file values",
			wantListen:  ":9000",
			wantDB:      "sortingview.db",
			wantWorkers: 8,
		},
		{
			name:        "flags override",
			listen:      "127.0.0.1:8081",
			dbPath:      "/tmp/sv.db",
			workers:     2,
			wantListen:  "127.0.0.1:8081",
			wantDB:      "/tmp/sv.db",
			wantWorkers: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, w := fileListen, fileWorkers
			cfg := &config.ViewerConfig{Listen: &l, Workers: &w}
			applyFlagOverrides(cfg, tt.listen, tt.dbPath, tt.workers)
			if got := cfg.GetListen(); got != tt.wantListen {
				t.Errorf("listen = %q, want %q", got, tt.wantListen)
			}
			if got := cfg.GetDBPath(); got != tt.wantDB {
				t.Errorf("db path = %q, want %q", got, tt.wantDB)
			}
			if got := cfg.GetWorkers(); got != tt.wantWorkers {
				t.Errorf("workers = %d, want %d", got, tt.wantWorkers)
			}
		})
	}
}

func TestLoadConfig_InvalidWorkers(t *testing.T) {
	old := *workers
	*workers = -3
	t.Cleanup(func() { *workers = old })

	if _, err := loadConfig(); err == nil {
		t.Error("expected negative -workers to be rejected")
	}
}
