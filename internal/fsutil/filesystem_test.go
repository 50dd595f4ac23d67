package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOSFileSystem_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	fsys := OSFileSystem{}
	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected %q, got %q", "[]", data)
	}

	info, err := fsys.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 2 {
		t.Errorf("expected size 2, got %d", info.Size())
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()
	testData := []byte(`[{"name":"snr"}]`)
	mfs.WriteFile("/data/metrics.json", testData)

	data, err := mfs.ReadFile("/data/../data/metrics.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	// returned data is a copy
	data[0] = 'X'
	again, _ := mfs.ReadFile("/data/metrics.json")
	if again[0] != '[' {
		t.Error("ReadFile returned shared storage")
	}
}

func TestMemoryFileSystem_Stat(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/data/metrics.json", []byte("12345"))

	info, err := mfs.Stat("/data/metrics.json")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != "metrics.json" || info.Size() != 5 || info.IsDir() {
		t.Errorf("unexpected file info: name=%s size=%d dir=%v", info.Name(), info.Size(), info.IsDir())
	}

	dir, err := mfs.Stat("/data")
	if err != nil {
		t.Fatalf("Stat dir failed: %v", err)
	}
	if !dir.IsDir() || dir.Mode()&fs.ModeDir == 0 {
		t.Error("expected /data to be a directory")
	}

	if _, err := mfs.Stat("/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if _, err := mfs.ReadFile("/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestReadFileLimited(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/data/small.json", []byte("{}"))
	mfs.WriteFile("/data/big.json", []byte(strings.Repeat("x", 100)))

	data, err := ReadFileLimited(mfs, "/data/small.json", 10)
	if err != nil {
		t.Fatalf("ReadFileLimited failed: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("expected {}, got %q", data)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"too large", "/data/big.json", "too large"},
		{"directory", "/data", "is a directory"},
		{"missing", "/data/none.json", "does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFileLimited(mfs, tt.path, 10)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
