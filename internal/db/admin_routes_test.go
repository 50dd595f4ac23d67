package db

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAttachAdminRoutes(t *testing.T) {
	database := newTestDB(t)
	seed(t, database)

	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	// tsweb's debugger only serves loopback clients
	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}
	gz, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Expected gzip body: %v", err)
	}
	body, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !strings.HasPrefix(string(body), "SQLite format 3") {
		t.Errorf("Backup does not look like a sqlite database")
	}
}

func TestAdminRoutes_DBStats(t *testing.T) {
	database := newTestDB(t)
	seed(t, database)

	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/debug/db-stats", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body struct {
		Tables map[string]int `json:"tables"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Tables["recordings"] != 1 || body.Tables["sortings"] != 1 {
		t.Errorf("Unexpected counts: %v", body.Tables)
	}
}
