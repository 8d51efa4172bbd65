package main

import (
	"bytes"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := run([]string{"help"}, &out, &errOut); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(out.String(), "basable serve") {
		t.Errorf("usage missing:\n%s", out.String())
	}

	if err := run([]string{"dump", "-h"}, &out, &errOut); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("dump -h: %v", err)
	}
	if err := run([]string{"frobnicate"}, &out, &errOut); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRunDumpSQLite(t *testing.T) {
	noColor(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "shop.db")
	seedSQLite(t, db)

	var out, errOut bytes.Buffer
	err := run([]string{
		"dump",
		"-config", filepath.Join(dir, "config.json"),
		"-log", filepath.Join(dir, "basable.log"),
		"-sqlite", db,
		"-table", "users",
		"-page-size", "2",
	}, &out, &errOut)
	if err != nil {
		t.Fatalf("dump: %v\n%s", err, errOut.String())
	}

	got := out.String()
	for _, want := range []string{"email", "a@x.com", "b@x.com", "2 rows, 6 columns"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "c@x.com") {
		t.Errorf("row beyond the page dumped:\n%s", got)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	opts := &cliOptions{
		configPath: filepath.Join(dir, "config.json"),
		sqlitePath: filepath.Join(dir, "shop.db"),
		url:        "http://localhost:5000/core",
		pageSize:   7,
		listen:     ":6000",
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.PageSize != 7 || cfg.ListenAddr != ":6000" {
		t.Errorf("overrides = %d / %s", cfg.PageSize, cfg.ListenAddr)
	}
	if opts.source != "shop" {
		t.Errorf("source = %q, want the sqlite file name", opts.source)
	}
	if src, ok := cfg.Source("backend"); !ok || src.Type != SourceHTTP {
		t.Errorf("backend source = %+v", src)
	}

	_, err = loadConfig(&cliOptions{configPath: filepath.Join(dir, "config.json"), source: "nope"})
	if err == nil {
		t.Error("expected error for unknown source")
	}
}
