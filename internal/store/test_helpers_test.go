package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/sfcpath/internal/model"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestForwarder creates a forwarder with one bound function.
func createTestForwarder(name, function string) model.Forwarder {
	f := model.Forwarder{Name: name, Locator: "10.0.0.1"}
	f.PutEntry(model.DictionaryEntry{Name: function, Type: "firewall"})
	return f
}
