package testing

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// LoadFixture reads a file from the calling package's fixtures/ directory —
// used by feed- and report-adjacent tests to load a small canned candle
// series or config document instead of constructing one field by field.
func LoadFixture(t *testing.T, name string) []byte {
	t.Helper()
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		t.Fatalf("fixtures: unable to resolve caller path")
	}
	base := filepath.Join(filepath.Dir(file), "fixtures")
	path := filepath.Join(base, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("fixtures: read %s: %v", path, err)
	}
	return raw
}
