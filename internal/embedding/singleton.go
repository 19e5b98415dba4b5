package embedding

import (
	"sync"

	"acemem/internal/logging"

	"golang.org/x/sync/singleflight"
)

// sharedGroup collapses concurrent first-callers of GetShared into a single
// real construction, the Go equivalent of the double-checked lock the spec's
// design notes call for around the process-wide encoder singleton (§9).
var (
	sharedMu    sync.RWMutex
	sharedCfg   Config
	sharedOK    bool
	sharedEng   EmbeddingEngine
	sharedGroup singleflight.Group
)

// GetShared returns the process-wide embedding engine for cfg, constructing
// it on first use. Subsequent calls with an identical cfg return the cached
// instance; calls with a different cfg reconstruct (a store reopened with a
// different provider/model is expected to ask for a fresh engine).
func GetShared(cfg Config) (EmbeddingEngine, error) {
	sharedMu.RLock()
	if sharedOK && sharedCfg == cfg {
		eng := sharedEng
		sharedMu.RUnlock()
		return eng, nil
	}
	sharedMu.RUnlock()

	key := cfg.Provider + "|" + cfg.OllamaEndpoint + "|" + cfg.OllamaModel + "|" + cfg.GenAIModel + "|" + cfg.TaskType
	v, err, _ := sharedGroup.Do(key, func() (interface{}, error) {
		sharedMu.RLock()
		if sharedOK && sharedCfg == cfg {
			eng := sharedEng
			sharedMu.RUnlock()
			return eng, nil
		}
		sharedMu.RUnlock()

		logging.Embedding("GetShared: constructing new shared embedding engine, provider=%s", cfg.Provider)
		eng, err := NewEngine(cfg)
		if err != nil {
			return nil, err
		}

		sharedMu.Lock()
		sharedCfg = cfg
		sharedEng = eng
		sharedOK = true
		sharedMu.Unlock()

		return eng, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(EmbeddingEngine), nil
}
