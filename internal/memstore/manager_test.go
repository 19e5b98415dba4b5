package memstore

import (
	"path/filepath"
	"testing"

	"acemem/internal/config"
	"acemem/internal/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ResolvePaths_SharedModeHasNoSessionSegment(t *testing.T) {
	cfg := config.DefaultStoreConfig()
	cfg.BasePath = filepath.Join(t.TempDir(), "ace_memory")
	mgr := NewManager(cfg, embedding.DefaultConfig(), &fakeEngine{dims: 4})

	dbPath, idxPath := mgr.resolvePaths("")
	assert.NotContains(t, dbPath, "None")
	assert.NotContains(t, idxPath, "None")
	assert.Equal(t, cfg.BasePath+".db", dbPath)
	assert.Equal(t, cfg.BasePath+".faiss", idxPath)
}

func TestManager_ResolvePaths_SessionModeIsolatesPerSession(t *testing.T) {
	cfg := config.DefaultStoreConfig()
	cfg.BasePath = filepath.Join(t.TempDir(), "ace_memory")
	mgr := NewManager(cfg, embedding.DefaultConfig(), &fakeEngine{dims: 4})

	dbA, _ := mgr.resolvePaths("session-a")
	dbB, _ := mgr.resolvePaths("session-b")
	assert.NotEqual(t, dbA, dbB)
	assert.Contains(t, dbA, "session-a")
	assert.Contains(t, dbB, "session-b")
}

func TestManager_Get_CachesOpenStores(t *testing.T) {
	cfg := config.DefaultStoreConfig()
	cfg.BasePath = filepath.Join(t.TempDir(), "ace_memory")
	cfg.Metric = "l2"
	mgr := NewManager(cfg, embedding.DefaultConfig(), &fakeEngine{dims: 4})
	t.Cleanup(func() { mgr.Close() })

	m1, err := mgr.Get("session-a")
	require.NoError(t, err)
	m2, err := mgr.Get("session-a")
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	m3, err := mgr.Get("session-b")
	require.NoError(t, err)
	assert.NotSame(t, m1, m3)
}
