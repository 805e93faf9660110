//go:build blackbox

package blackbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

// example returns the path of a file under examples/scenario.
func example(name string) string {
	return filepath.Join("..", "..", "examples", "scenario", name)
}

// workdir copies the example config into a temp dir and points the store
// there.
func workdir(t *testing.T) (cfg, db string) {
	t.Helper()
	dir := t.TempDir()
	data, err := os.ReadFile(example("signalgov.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	s := strings.ReplaceAll(string(data), "./events.csv", filepath.Join(dir, "events.csv"))
	cfg = filepath.Join(dir, "signalgov.yaml")
	if err := os.WriteFile(cfg, []byte(s), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfg, filepath.Join(dir, "signals.db")
}
