package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/vaultlens/internal/testutil"
)

func testApp(t *testing.T, mutate func(*Config)) (*App, string) {
	t.Helper()
	dir := testutil.TestVault(t, map[string]string{
		"a.md": "[[b]]",
		"b.md": "[[a]] [[missing]]",
		"c.md": "alone",
	})
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "vaultlens.db")
	cfg.Vaults = []VaultConfig{{Path: dir, Name: "notes"}}
	cfg.Scan.HashAlgorithm = "blake3"
	if mutate != nil {
		mutate(cfg)
	}
	app, err := New(WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app, dir
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBootstrap_ScansAndAnalyses(t *testing.T) {
	app, dir := testApp(t, nil)
	ids, err := app.Bootstrap(context.Background(), false)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v", ids)
	}

	vault, err := app.Service.GetVault(context.Background(), ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if vault.Name != "notes" || vault.RootPath != dir {
		t.Errorf("vault = %+v", vault)
	}
	broken, err := app.Service.BrokenLinks(context.Background(), ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(broken) != 1 {
		t.Errorf("broken links = %d, want 1", len(broken))
	}

	hashes, err := app.DB.NoteHashes(context.Background(), ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hashes["a.md"], "blake3:") {
		t.Errorf("hash = %q, want blake3 digest", hashes["a.md"])
	}

	roots := watchRoots(context.Background(), app)
	if len(roots) != 1 || roots[0].VaultID != ids[0] {
		t.Errorf("watch roots = %+v", roots)
	}
}

func TestBootstrap_MissingVaultReported(t *testing.T) {
	app, _ := testApp(t, func(c *Config) {
		c.Vaults = append(c.Vaults, VaultConfig{Path: filepath.Join(c.SQLite.Path, "nope")})
	})
	ids, err := app.Bootstrap(context.Background(), false)
	if err == nil {
		t.Fatal("expected error for missing vault")
	}
	if len(ids) != 1 {
		t.Errorf("ids = %v, want the healthy vault", ids)
	}
}

func TestHTTPHandler_HealthAndMetrics(t *testing.T) {
	app, _ := testApp(t, nil)
	if _, err := app.Bootstrap(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	h := NewHTTPHandler(app)

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "vaultlens_scan_runs_total") {
		t.Errorf("metrics = %d, missing scan counter", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vaults", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/api/vaults = %d", w.Code)
	}
	var body struct {
		Vaults []struct {
			Name string `json:"name"`
		} `json:"vaults"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || len(body.Vaults) != 1 {
		t.Errorf("body = %s (%v)", w.Body.String(), err)
	}
}

func TestHTTPHandler_AuthProtectsAPIOnly(t *testing.T) {
	app, _ := testApp(t, func(c *Config) {
		c.Auth = AuthConfig{Mode: AuthModeToken, Token: "s3cret"}
	})
	h := NewHTTPHandler(app)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vaults", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/api/vaults without token = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health/live = %d, want 200", w.Code)
	}
}
