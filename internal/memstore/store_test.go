package memstore

import (
	"context"
	"path/filepath"
	"testing"

	"acemem/internal/config"
	"acemem/internal/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a deterministic stand-in for a real embedding backend:
// it maps text to a small fixed-width vector derived from character
// codes, so semantically similar test strings land near each other
// without needing a real model.
type fakeEngine struct {
	dims int
}

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
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func testStore(t *testing.T) *Memory {
	t.Helper()
	dir := t.TempDir()
	engine := &fakeEngine{dims: 4}
	embedCfg := embedding.DefaultConfig()
	storeCfg := config.DefaultStoreConfig()
	storeCfg.Metric = "l2"

	m, err := Open(filepath.Join(dir, "test.db"), filepath.Join(dir, "test.vecidx"), engine, embedCfg, storeCfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAdd_AssignsPositiveIDAndIsRetrievable(t *testing.T) {
	m := testStore(t)
	ctx := context.Background()

	id, err := m.Add(ctx, "foo bar baz", []string{"foo", "bar"}, "greeting")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	doc, err := m.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "foo bar baz", doc.Content)
	assert.Equal(t, []string{"foo", "bar"}, doc.Entities)
	assert.Equal(t, "greeting", doc.ProblemClass)
}

func TestAddBatch_InsertsAllAndIndexesAll(t *testing.T) {
	m := testStore(t)
	ctx := context.Background()

	ids, err := m.AddBatch(ctx, []NewDocument{
		{Content: "alpha", Entities: nil, ProblemClass: "x"},
		{Content: "beta", Entities: nil, ProblemClass: "y"},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, m.index.Count())
}

func TestUpdateDocument_ChangesStoredFields(t *testing.T) {
	m := testStore(t)
	ctx := context.Background()

	id, err := m.Add(ctx, "original content", nil, "")
	require.NoError(t, err)

	require.NoError(t, m.UpdateDocument(ctx, id, "revised content", []string{"a"}, "revised"))

	doc, err := m.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "revised content", doc.Content)
	assert.Equal(t, "revised", doc.ProblemClass)
}

func TestClear_RemovesAllDocuments(t *testing.T) {
	m := testStore(t)
	ctx := context.Background()

	_, err := m.Add(ctx, "something", nil, "")
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx))

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFindSimilar_ReturnsCandidatesWithinThreshold(t *testing.T) {
	m := testStore(t)
	ctx := context.Background()

	_, err := m.Add(ctx, "aaaa", nil, "")
	require.NoError(t, err)
	_, err = m.Add(ctx, "zzzz", nil, "")
	require.NoError(t, err)

	results, err := m.FindSimilar(ctx, "aaaa", 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearch_FallsBackToFTSWhenVectorPhaseShort(t *testing.T) {
	m := testStore(t)
	ctx := context.Background()

	_, err := m.Add(ctx, "the quick brown fox", nil, "")
	require.NoError(t, err)

	// A very tight threshold forces the vector phase to contribute nothing,
	// exercising the FTS5 fallback exclusively.
	tight := 0.0000001
	results, err := m.Search(ctx, "quick", 3, &tight)
	require.NoError(t, err)
	assert.Contains(t, results, "the quick brown fox")
}

func TestRebuild_ReconstructsIndexFromDocuments(t *testing.T) {
	m := testStore(t)
	ctx := context.Background()

	_, err := m.Add(ctx, "one", nil, "")
	require.NoError(t, err)
	_, err = m.Add(ctx, "two", nil, "")
	require.NoError(t, err)

	require.NoError(t, m.index.Clear())
	require.NoError(t, m.Rebuild(ctx))

	assert.Equal(t, 2, m.index.Count())
}
