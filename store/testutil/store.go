// Package testutil provides store helpers for tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/signoffhq/signoff/store"
)

var dbSeq atomic.Int64

// NewTestSQLiteStore opens an in-memory store and closes it on cleanup. Each
// call gets its own database; cache=shared keeps it visible across pooled
// connections.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
