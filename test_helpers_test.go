package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

var repoRoot string

// init walks up from this file until it finds go.mod.
func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		if filepath.Dir(dir) == dir {
			return
		}
	}
}

// configFixture returns the path of a config sample under internal/config/testdata.
func configFixture(t *testing.T, name string) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("go.mod not found above test file")
	}
	return filepath.Join(repoRoot, "internal", "config", "testdata", name)
}
