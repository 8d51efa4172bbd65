package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Timeout() != defaultFetchTimeout || cfg.PageSize != defaultPageSize {
		t.Errorf("defaults = %s / %d", cfg.Timeout(), cfg.PageSize)
	}
	if cfg.ListenAddr != ":5000" {
		t.Errorf("listen = %q", cfg.ListenAddr)
	}
	if cfg.LogFile != filepath.Join(filepath.Dir(path), "basable.log") {
		t.Errorf("log file = %q", cfg.LogFile)
	}
}

func TestLoadConfigReadsSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"fetch_timeout": "3s",
		"page_size": 25,
		"sources": [
			{"name": "pg", "host": "db.local", "user": "me", "database": "app"},
			{"name": "local", "type": "sqlite", "path": "/tmp/app.db"},
			{"name": "api", "type": "http", "url": "http://localhost:5000/core"}
		]
	}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Timeout() != 3*time.Second || cfg.PageSize != 25 {
		t.Errorf("timeout = %s, page size = %d", cfg.Timeout(), cfg.PageSize)
	}

	pg, ok := cfg.Source("pg")
	if !ok || pg.Type != SourcePostgres || pg.Port != 5432 || pg.SSLMode != "disable" {
		t.Errorf("pg = %+v", pg)
	}

	var names []string
	for _, src := range cfg.SortedSources() {
		names = append(names, src.Name)
	}
	if got := strings.Join(names, ","); got != "api,local,pg" {
		t.Errorf("sorted = %s", got)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad json":      `{`,
		"bad duration":  `{"fetch_timeout": "soon"}`,
		"no name":       `{"sources": [{"type": "sqlite", "path": "a.db"}]}`,
		"no path":       `{"sources": [{"name": "x", "type": "sqlite"}]}`,
		"no url":        `{"sources": [{"name": "x", "type": "http"}]}`,
		"unknown type":  `{"sources": [{"name": "x", "type": "oracle"}]}`,
		"postgres host": `{"sources": [{"name": "x"}]}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(data), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfigSaveAndAddSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.AddSource(&SourceConfig{Name: "local", Type: SourceSQLite, Path: "a.db"}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddSource(&SourceConfig{Name: "local", Type: SourceSQLite, Path: "b.db"}); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Path != "b.db" {
		t.Errorf("sources = %+v", cfg.Sources)
	}
	if err := cfg.AddSource(&SourceConfig{Name: "bad", Type: SourceHTTP}); err == nil {
		t.Error("expected validation error")
	}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if src, ok := loaded.Source("local"); !ok || src.Path != "b.db" {
		t.Errorf("reloaded source = %+v", src)
	}
}
