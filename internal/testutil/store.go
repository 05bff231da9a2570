package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/g960059/persterm/internal/db"
)

// NewStore opens a migrated journal in a temp dir, closed on cleanup.
func NewStore(t *testing.T) (*db.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := db.OpenMigrated(ctx, filepath.Join(t.TempDir(), "persterm-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, ctx
}
