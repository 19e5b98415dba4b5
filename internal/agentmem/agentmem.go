// Package agentmem is the agent-facing interface (component G): a narrow,
// two-method surface - Recall for read, Observe for write - that hides the
// memory store, task queue, and reflection worker wiring behind one
// session handle. Intentionally minimal; the spec calls for this surface
// to stay a thin delegation layer, not grow its own logic.
package agentmem

import (
	"context"
	"fmt"
	"sync"

	"acemem/internal/config"
	"acemem/internal/embedding"
	"acemem/internal/logging"
	"acemem/internal/memstore"
	"acemem/internal/oracle"
	"acemem/internal/queue"
	"acemem/internal/reflection"
)

// Session bundles one session's memory store, task queue, and reflection
// worker so Recall/Observe always operate on the right set of files.
type Session struct {
	ID        string
	memory    *memstore.Memory
	queue     *queue.Queue
	reflector *reflection.Worker
}

// Recall performs a hybrid (vector + lexical) search over the session's
// memory store, returning up to k matching document contents.
func (s *Session) Recall(ctx context.Context, query string, k int) ([]string, error) {
	return s.memory.Search(ctx, query, k, nil)
}

// Observe records an interaction for the reflection worker to analyze
// later; it never blocks on oracle or embedding calls.
func (s *Session) Observe(ctx context.Context, userInput, agentOutput string) error {
	_, err := s.queue.Enqueue(ctx, userInput, agentOutput)
	return err
}

// Rebuild reconstructs the session's vector index from its document table.
// Not part of the two-method agent-facing contract; exposed for operator
// maintenance tooling (the CLI's migrate subcommand).
func (s *Session) Rebuild(ctx context.Context) error {
	return s.memory.Rebuild(ctx)
}

// Manager opens and caches Sessions, wiring each one's memory store, task
// queue, and reflection worker together and starting the worker
// immediately on first use (unless ReflectionConfig.Enabled is false) -
// the concrete factory behind component G.
type Manager struct {
	mu        sync.Mutex
	memMgr    *memstore.Manager
	oracleCli oracle.Client
	reflCfg   config.ReflectionConfig
	lang      string
	sessions  map[string]*Session
}

// NewManager builds a Manager. engine and oracleCli are expected to already
// be resolved (embedding.GetShared, oracle.NewClient) and shared across
// every session this Manager serves.
func NewManager(storeCfg config.StoreConfig, embedCfg embedding.Config, engine embedding.EmbeddingEngine, oracleCli oracle.Client, reflCfg config.ReflectionConfig) *Manager {
	return &Manager{
		memMgr:    memstore.NewManager(storeCfg, embedCfg, engine),
		oracleCli: oracleCli,
		reflCfg:   reflCfg,
		lang:      storeCfg.Language,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the Session for sessionID, opening and wiring it on first
// use. An empty sessionID addresses the shared, non-session-scoped store.
func (mgr *Manager) Get(sessionID string) (*Session, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if s, ok := mgr.sessions[sessionID]; ok {
		return s, nil
	}

	mem, err := mgr.memMgr.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("agentmem: opening memory store for session %q: %w", sessionID, err)
	}

	q, err := queue.Open(mem.DB())
	if err != nil {
		return nil, fmt.Errorf("agentmem: opening task queue for session %q: %w", sessionID, err)
	}

	worker := reflection.New(mem, q, mgr.oracleCli, mgr.reflCfg, mgr.lang)
	if mgr.reflCfg.Enabled {
		worker.Start()
	}

	s := &Session{ID: sessionID, memory: mem, queue: q, reflector: worker}
	mgr.sessions[sessionID] = s
	logging.Boot("agentmem: session %q ready", sessionID)
	return s, nil
}

// Close stops every session's reflection worker and closes its store.
func (mgr *Manager) Close() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	for id, s := range mgr.sessions {
		s.reflector.Stop()
		delete(mgr.sessions, id)
	}
	return mgr.memMgr.Close()
}
