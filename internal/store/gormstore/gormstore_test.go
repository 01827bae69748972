package gormstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/fin-advisor/backend/internal/store"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/gormstore"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/storetest"
)

func TestGormStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := gormstore.Open(filepath.Join(t.TempDir(), "nested", "advisor.db"), zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenIsIdempotentOnExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advisor.db")

	first, err := gormstore.Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := gormstore.Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
