package agentmem

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"acemem/internal/config"
	"acemem/internal/embedding"
	"acemem/internal/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct{ dims int }

func (f *fakeEngine) Dimensions() int { return f.dims }
func (f *fakeEngine) Name() string    { return "fake" }
func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dims)
	for i, r := range text {
		vec[i%f.dims] += float32(r)
	}
	return vec, nil
}
func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

type fakeOracle struct{}

func (fakeOracle) Invoke(ctx context.Context, prompt string) (string, error) {
	return `{"should_store": false}`, nil
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	storeCfg := config.DefaultStoreConfig()
	storeCfg.BasePath = filepath.Join(t.TempDir(), "ace_memory")
	storeCfg.Metric = "l2"

	reflCfg := config.DefaultReflectionConfig()
	reflCfg.PollInterval = "20ms"

	mgr := NewManager(storeCfg, embedding.DefaultConfig(), &fakeEngine{dims: 4}, fakeOracle{}, reflCfg)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestGet_CachesSessionAndStartsWorker(t *testing.T) {
	mgr := testManager(t)

	s1, err := mgr.Get("session-a")
	require.NoError(t, err)
	s2, err := mgr.Get("session-a")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.NotNil(t, s1.reflector)
}

func TestRecall_FindsDocumentAddedToStore(t *testing.T) {
	mgr := testManager(t)
	s, err := mgr.Get("")
	require.NoError(t, err)
	ctx := context.Background()

	id, err := s.memory.Add(ctx, "paris is the capital of france", nil, "geography")
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	results, err := s.Recall(ctx, "paris", 5)
	require.NoError(t, err)
	assert.Contains(t, results, "paris is the capital of france")
}

func TestObserve_EnqueuesTaskForReflectionWorker(t *testing.T) {
	mgr := testManager(t)
	s, err := mgr.Get("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Observe(ctx, "what's the weather", "it's sunny"))

	require.Eventually(t, func() bool {
		tasks, err := s.queue.ListRecent(ctx, 10)
		return err == nil && len(tasks) == 1 && tasks[0].Status != "pending" && tasks[0].Status != "processing"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGet_DifferentSessionsGetIsolatedStores(t *testing.T) {
	mgr := testManager(t)

	sa, err := mgr.Get("session-a")
	require.NoError(t, err)
	sb, err := mgr.Get("session-b")
	require.NoError(t, err)
	assert.NotSame(t, sa, sb)

	ctx := context.Background()
	_, err = sa.memory.Add(ctx, "only in session a", nil, "")
	require.NoError(t, err)

	results, err := sb.Recall(ctx, "only in session a", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
