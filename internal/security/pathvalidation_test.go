package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	metricsDir := filepath.Join(tmpDir, "metrics")
	privateDir := filepath.Join(tmpDir, "private")
	for _, dir := range []string{metricsDir, privateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(privateDir, "secret.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("Failed to create private file: %v", err)
	}
	link := filepath.Join(metricsDir, "linked")
	if err := os.Symlink(privateDir, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file in directory", filepath.Join(metricsDir, "units.json"), metricsDir, false},
		{"nested file", filepath.Join(metricsDir, "run1", "units.json"), metricsDir, false},
		{"dot-dot escape", filepath.Join(metricsDir, "..", "private", "secret.json"), metricsDir, true},
		{"relative escape", "../../../etc/passwd", metricsDir, true},
		{"absolute path elsewhere", "/etc/passwd", metricsDir, true},
		{"symlinked directory", filepath.Join(link, "secret.json"), metricsDir, true},
		{"symlink itself", link, metricsDir, true},
		{"missing file under symlink", filepath.Join(link, "new.json"), metricsDir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	tests := []struct {
		name        string
		filePath    string
		allowedDirs []string
		wantError   bool
	}{
		{"first dir", filepath.Join(dir1, "units.json"), []string{dir1, dir2}, false},
		{"second dir", filepath.Join(dir2, "units.json"), []string{dir1, dir2}, false},
		{"outside", "/etc/passwd", []string{dir1, dir2}, true},
		{"no dirs", filepath.Join(dir1, "units.json"), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinAllowedDirs(tt.filePath, tt.allowedDirs)
			if (err != nil) != tt.wantError {
				t.Fatalf("ValidatePathWithinAllowedDirs() error = %v, wantError %v", err, tt.wantError)
			}
			if err != nil && !errors.Is(err, ErrOutsideAllowedDirs) {
				t.Errorf("expected ErrOutsideAllowedDirs, got %v", err)
			}
		})
	}
}
