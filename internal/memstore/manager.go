package memstore

import (
	"fmt"
	"path/filepath"
	"sync"

	"acemem/internal/config"
	"acemem/internal/embedding"
)

// Manager resolves store paths per session and caches open Memory
// instances so repeated lookups for the same session reuse one handle
// instead of reopening the database and index files.
//
// This replaces the original's path construction, which has a latent bug:
// in "shared" mode (no session id) it built the index path as
// f"{DB_PATH}_idx_{self.session_id}.index" - interpolating the *unset*
// session_id and producing a literal "..._idx_None.index" filename. Manager
// resolves this explicitly: shared mode never interpolates a session id
// into the index path at all (DESIGN.md: Open Question resolutions).
type Manager struct {
	mu       sync.Mutex
	cfg      config.StoreConfig
	embedCfg embedding.Config
	engine   embedding.EmbeddingEngine
	open     map[string]*Memory
}

// NewManager constructs a Manager. engine is shared across every session's
// store (embedding.GetShared is expected to have already resolved it).
func NewManager(cfg config.StoreConfig, embedCfg embedding.Config, engine embedding.EmbeddingEngine) *Manager {
	return &Manager{
		cfg:      cfg,
		embedCfg: embedCfg,
		engine:   engine,
		open:     make(map[string]*Memory),
	}
}

// Get returns the Memory for sessionID, opening it on first use. An empty
// sessionID addresses the shared, non-session-scoped store at cfg.BasePath.
func (mgr *Manager) Get(sessionID string) (*Memory, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	key := sessionID
	if m, ok := mgr.open[key]; ok {
		return m, nil
	}

	dbPath, indexPath := mgr.resolvePaths(sessionID)
	m, err := Open(dbPath, indexPath, mgr.engine, mgr.embedCfg, mgr.cfg)
	if err != nil {
		return nil, fmt.Errorf("memstore: opening store for session %q: %w", sessionID, err)
	}

	mgr.open[key] = m
	return m, nil
}

// resolvePaths computes the db/index file paths for a session. Isolated
// (per-session) stores live at "<dir of BasePath>/user_data/<base name of
// BasePath>_<id>" (user_data/ace_memory_<id> with the default BasePath);
// the shared store lives directly at "<BasePath>" with no session segment,
// so there is never an unset session id to interpolate.
func (mgr *Manager) resolvePaths(sessionID string) (dbPath, indexPath string) {
	if sessionID == "" {
		return mgr.cfg.BasePath + ".db", mgr.cfg.BasePath + ".faiss"
	}
	base := filepath.Join(filepath.Dir(mgr.cfg.BasePath), "user_data", filepath.Base(mgr.cfg.BasePath)+"_"+sessionID)
	return base + ".db", base + ".faiss"
}

// Close closes every open store.
func (mgr *Manager) Close() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	var firstErr error
	for key, m := range mgr.open {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(mgr.open, key)
	}
	return firstErr
}
