// Package memstore implements the hybrid document + vector memory store
// (component D): a SQLite-backed document table with an FTS5 shadow index
// for lexical search, paired 1:1 with a vectorindex.Index for semantic
// search. Every document insert, update, and delete keeps both sides in
// step; Clear removes both and Rebuild can reconstruct the vector side
// purely from the document table, matching the original's crash-recovery
// contract.
package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"acemem/internal/config"
	"acemem/internal/embedding"
	"acemem/internal/logging"
	"acemem/internal/vectorindex"
)

// Document is one stored memory entry.
type Document struct {
	ID           int64     `json:"id"`
	Content      string    `json:"content"`
	Entities     []string  `json:"entities"`
	ProblemClass string    `json:"problem_class"`
	Timestamp    time.Time `json:"timestamp"`
}

// SimilarDocument pairs a Document with its similarity/distance score from
// a FindSimilar call.
type SimilarDocument struct {
	Document
	Score float64
}

// Memory is the hybrid document + vector store for one database/index pair.
// A Memory is safe for concurrent use without an external mutex: the write
// paths (AddBatch, UpdateDocument, Clear) hold an internal mutex across
// their SQLite write, embedding call and index write, so concurrent writes
// on one Memory run one at a time. Search and FindSimilar do not take it.
type Memory struct {
	mu       sync.RWMutex
	db       *sql.DB
	index    *vectorindex.Index
	engine   embedding.EmbeddingEngine
	embedCfg embedding.Config
	metric   string
	dbPath   string
}

// Open opens (or creates) the document database and vector index at the
// given paths, using engine for embedding generation. embedCfg carries the
// prefix convention (SPEC_FULL.md §4.A); storeCfg carries the distance
// metric and threshold.
func Open(dbPath, indexPath string, engine embedding.EmbeddingEngine, embedCfg embedding.Config, storeCfg config.StoreConfig) (*Memory, error) {
	timer := logging.StartTimer(logging.CategoryStore, "memstore.Open")
	defer timer.Stop()

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("memstore: creating db directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("memstore: opening database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("memstore: initializing schema: %w", err)
	}

	idx, err := vectorindex.Open(indexPath, engine.Dimensions(), storeCfg.Metric)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("memstore: opening vector index: %w", err)
	}

	m := &Memory{
		db:       db,
		index:    idx,
		engine:   engine,
		embedCfg: embedCfg,
		metric:   storeCfg.Metric,
		dbPath:   dbPath,
	}

	if err := m.ensureIndexConsistency(context.Background()); err != nil {
		logging.StoreWarn("memstore: index consistency check failed: %v", err)
	}

	logging.Store("memstore opened: db=%s, index entries=%d, metric=%s", dbPath, idx.Count(), storeCfg.Metric)
	return m, nil
}

// ensureIndexConsistency rebuilds the vector index from the documents table
// when the two have drifted apart (e.g. the index file was missing or
// corrupt and vectorindex.Open silently started it empty) - the Go
// analogue of _load_or_build_index falling through to
// _rebuild_vectors_from_db.
func (m *Memory) ensureIndexConsistency(ctx context.Context) error {
	var docCount int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&docCount); err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}
	if m.index.Count() == docCount {
		return nil
	}

	logging.StoreWarn("memstore: document count (%d) does not match index count (%d); rebuilding index", docCount, m.index.Count())
	return m.Rebuild(ctx)
}

// Rebuild re-encodes every document and replaces the vector index contents,
// matching _rebuild_vectors_from_db.
func (m *Memory) Rebuild(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx, "SELECT id, content FROM documents")
	if err != nil {
		return fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	var contents []string
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			return fmt.Errorf("scanning document row: %w", err)
		}
		ids = append(ids, id)
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return m.index.RebuildFromDocuments(nil)
	}

	encoded := embedding.EncodeDocumentBatch(m.embedCfg, contents)
	vectors, err := m.engine.EmbedBatch(ctx, encoded)
	if err != nil {
		return fmt.Errorf("embedding documents for rebuild: %w", err)
	}

	entries := make([]vectorindex.Entry, len(ids))
	for i, id := range ids {
		entries[i] = vectorindex.Entry{ID: id, Vector: vectors[i]}
	}
	return m.index.RebuildFromDocuments(entries)
}

// Add inserts a new document and its vector, returning the assigned id.
func (m *Memory) Add(ctx context.Context, content string, entities []string, problemClass string) (int64, error) {
	ids, err := m.AddBatch(ctx, []NewDocument{{Content: content, Entities: entities, ProblemClass: problemClass}})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// NewDocument is the input shape for AddBatch.
type NewDocument struct {
	Content      string
	Entities     []string
	ProblemClass string
}

// AddBatch inserts multiple documents in one DB transaction, then encodes
// and appends their vectors to the index in one locked write - the Go
// analogue of add_batch's "DB write in one transaction, then batch encode,
// then batch index update" structure.
func (m *Memory) AddBatch(ctx context.Context, docs []NewDocument) ([]int64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("memstore: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO documents (content, entities, problem_class) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("memstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(docs))
	contents := make([]string, len(docs))
	for i, d := range docs {
		entitiesJSON, err := json.Marshal(d.Entities)
		if err != nil {
			return nil, fmt.Errorf("marshal entities: %w", err)
		}
		res, err := stmt.ExecContext(ctx, d.Content, string(entitiesJSON), d.ProblemClass)
		if err != nil {
			return nil, fmt.Errorf("insert document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("get inserted id: %w", err)
		}
		ids[i] = id
		contents[i] = d.Content
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("memstore: commit: %w", err)
	}

	encoded := embedding.EncodeDocumentBatch(m.embedCfg, contents)
	vectors, err := m.engine.EmbedBatch(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("memstore: embedding batch: %w", err)
	}

	entries := make([]vectorindex.Entry, len(ids))
	for i, id := range ids {
		entries[i] = vectorindex.Entry{ID: id, Vector: vectors[i]}
	}
	if err := m.index.AddBatch(entries); err != nil {
		return nil, fmt.Errorf("memstore: updating index: %w", err)
	}

	logging.StoreDebug("memstore: added %d document(s)", len(ids))
	return ids, nil
}

// UpdateDocument replaces a document's content/entities/problem_class and
// re-encodes its vector in place, matching update_document's
// remove_ids + add_with_ids cycle (implemented here as Index.Replace).
func (m *Memory) UpdateDocument(ctx context.Context, id int64, content string, entities []string, problemClass string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entitiesJSON, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}

	res, err := m.db.ExecContext(ctx,
		"UPDATE documents SET content = ?, entities = ?, problem_class = ?, timestamp = CURRENT_TIMESTAMP WHERE id = ?",
		content, string(entitiesJSON), problemClass, id)
	if err != nil {
		return fmt.Errorf("memstore: update document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("memstore: document %d not found", id)
	}

	encoded := embedding.EncodeDocument(m.embedCfg, content)
	vec, err := m.engine.Embed(ctx, encoded)
	if err != nil {
		return fmt.Errorf("memstore: embedding updated document: %w", err)
	}

	if err := m.index.Replace(id, vec); err != nil {
		return fmt.Errorf("memstore: replacing index entry: %w", err)
	}

	logging.StoreDebug("memstore: updated document %d", id)
	return nil
}

// GetByID fetches a single document.
func (m *Memory) GetByID(ctx context.Context, id int64) (*Document, error) {
	row := m.db.QueryRowContext(ctx, "SELECT id, content, entities, problem_class, timestamp FROM documents WHERE id = ?", id)
	return scanDocument(row)
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var entitiesJSON string
	if err := row.Scan(&d.ID, &d.Content, &entitiesJSON, &d.ProblemClass, &d.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if entitiesJSON != "" {
		_ = json.Unmarshal([]byte(entitiesJSON), &d.Entities)
	}
	return &d, nil
}

// GetAll returns every document, most recent first.
func (m *Memory) GetAll(ctx context.Context) ([]Document, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT id, content, entities, problem_class, timestamp FROM documents ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("memstore: query all: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var entitiesJSON string
		if err := rows.Scan(&d.ID, &d.Content, &entitiesJSON, &d.ProblemClass, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("memstore: scan document: %w", err)
		}
		if entitiesJSON != "" {
			_ = json.Unmarshal([]byte(entitiesJSON), &d.Entities)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// FindSimilar returns documents that pass threshold for content (distance
// below it for l2, score above it for cosine), capped at the
// top 3 nearest vectors - matching find_similar_vectors's fixed k=3 probe,
// used by the reflection worker's duplicate-detection step.
func (m *Memory) FindSimilar(ctx context.Context, content string, threshold float64) ([]SimilarDocument, error) {
	m.index.ReloadIfStale()

	encoded := embedding.EncodeQuery(m.embedCfg, content)
	vec, err := m.engine.Embed(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("memstore: embedding query: %w", err)
	}

	if m.index.Count() == 0 {
		return nil, nil
	}

	matches, err := m.index.Search(vec, 3)
	if err != nil {
		return nil, fmt.Errorf("memstore: vector search: %w", err)
	}

	var results []SimilarDocument
	for _, match := range matches {
		if !passesThreshold(match.Score, threshold, m.metric) {
			continue
		}
		row := m.db.QueryRowContext(ctx, "SELECT id, content, entities, problem_class, timestamp FROM documents WHERE id = ?", match.ID)
		doc, err := scanDocument(row)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		results = append(results, SimilarDocument{Document: *doc, Score: match.Score})
	}
	return results, nil
}

func passesThreshold(score, threshold float64, metric string) bool {
	if metric == "cosine" {
		return score > threshold
	}
	return score < threshold
}

// Search performs the hybrid lookup: vector search first (over-fetching
// k*3 candidates, threshold-filtered, truncated to k), falling back to an
// FTS5 MATCH query for any remaining slots if the vector phase didn't fill
// k results. Matches search()'s algorithm and its insertion-order-dedup
// result shape, exactly.
func (m *Memory) Search(ctx context.Context, query string, k int, distanceThreshold *float64) ([]string, error) {
	m.index.ReloadIfStale()

	threshold := defaultThresholdFor(m.metric)
	if distanceThreshold != nil {
		threshold = *distanceThreshold
	}

	seen := make(map[string]struct{})
	var ordered []string
	add := func(content string) {
		if _, ok := seen[content]; ok {
			return
		}
		seen[content] = struct{}{}
		ordered = append(ordered, content)
	}

	if m.index.Count() > 0 {
		encoded := embedding.EncodeQuery(m.embedCfg, query)
		vec, err := m.engine.Embed(ctx, encoded)
		if err != nil {
			return nil, fmt.Errorf("memstore: embedding query: %w", err)
		}

		searchK := k * 3
		if searchK > m.index.Count() {
			searchK = m.index.Count()
		}
		matches, err := m.index.Search(vec, searchK)
		if err != nil {
			return nil, fmt.Errorf("memstore: vector search: %w", err)
		}

		var foundIDs []int64
		for _, match := range matches {
			if passesThreshold(match.Score, threshold, m.metric) {
				foundIDs = append(foundIDs, match.ID)
			}
		}
		if len(foundIDs) > k {
			foundIDs = foundIDs[:k]
		}

		if len(foundIDs) > 0 {
			contents, err := m.fetchContents(ctx, foundIDs)
			if err != nil {
				return nil, err
			}
			for _, c := range contents {
				add(c)
			}
		}
	}

	if len(ordered) < k {
		remaining := k - len(ordered)
		ftsResults, err := m.searchFTS(ctx, query, remaining)
		if err != nil {
			logging.StoreWarn("memstore: fts fallback failed: %v", err)
		} else {
			for _, c := range ftsResults {
				add(c)
			}
		}
	}

	return ordered, nil
}

func defaultThresholdFor(metric string) float64 {
	if metric == "cosine" {
		return 0.7
	}
	return 1.8
}

func (m *Memory) fetchContents(ctx context.Context, ids []int64) ([]string, error) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT content FROM documents WHERE id IN (%s)", strings.Join(placeholders, ","))
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memstore: fetching contents: %w", err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

func (m *Memory) searchFTS(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT content FROM documents_fts WHERE documents_fts MATCH ? ORDER BY rank LIMIT ?", query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// Clear removes all documents and the vector index, leaving the store
// ready for immediate reuse: document rows and the FTS index are deleted,
// the index and lock files are removed, and a fresh empty index is opened
// in their place. The .db file is kept, and its task_queue table is not
// touched.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.db.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("memstore: clearing documents: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, "DELETE FROM documents_fts"); err != nil {
		return fmt.Errorf("memstore: clearing fts index: %w", err)
	}
	if err := m.index.Clear(); err != nil {
		return fmt.Errorf("memstore: clearing vector index: %w", err)
	}

	idx, err := vectorindex.Open(m.index.Path(), m.engine.Dimensions(), m.metric)
	if err != nil {
		return fmt.Errorf("memstore: reopening vector index: %w", err)
	}
	m.index = idx

	logging.Store("memstore cleared")
	return nil
}

// Close releases the underlying database handle.
func (m *Memory) Close() error {
	return m.db.Close()
}

// DB exposes the underlying database handle so a task queue can colocate
// its table in the same SQLite file (SPEC_FULL.md §6).
func (m *Memory) DB() *sql.DB {
	return m.db
}
