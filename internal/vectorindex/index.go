// Package vectorindex implements the flat, file-backed, exhaustive-scan
// vector index used by internal/memstore. It deliberately does not use an
// ANN structure: every search is a brute-force scan over all vectors, and
// the entire index can always be reconstructed from the documents table it
// shadows. Persistence is a single file guarded by an advisory lock file
// alongside it, written via atomic write-then-rename so a crash mid-write
// never leaves a half-written index on disk.
package vectorindex

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"acemem/internal/logging"

	"github.com/gofrs/flock"
)

// Entry is one (id, vector) pair held in memory.
type Entry struct {
	ID     int64
	Vector []float32
}

// Match is a search result: the id of a matching document and its distance
// (interpretation depends on Metric - similarity for cosine, distance for l2).
type Match struct {
	ID    int64
	Score float64
}

// Index is an in-memory flat vector index backed by a single file on disk.
// All mutating methods take the file lock, so multiple processes sharing
// the same index path serialize their writes; readers reload from disk
// when the file's mtime has advanced past what they last saw, mirroring
// the freshness check the search path performs.
type Index struct {
	mu         sync.RWMutex
	path       string
	lockPath   string
	dimensions int
	metric     string // "l2" or "cosine"
	entries    []Entry
	lastMtime  time.Time
}

// Open loads an existing index file at path, or creates an empty one if it
// doesn't exist. An existing file whose header dimensions or metric differ
// from the caller's, or which cannot be read, is treated as corrupt: a
// warning is logged, the index starts empty with the caller's dimensions
// and metric, and no error is returned.
func Open(path string, dimensions int, metric string) (*Index, error) {
	idx := &Index{
		path:       path,
		lockPath:   path + ".lock",
		dimensions: dimensions,
		metric:     metric,
	}

	fl := flock.New(idx.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("vectorindex: acquire lock: %w", err)
	}
	defer fl.Unlock()

	if _, err := os.Stat(path); err == nil {
		if err := idx.loadLocked(); err != nil {
			logging.StoreWarn("vectorindex: failed to read index at %s (%v), rebuilding empty", path, err)
			idx.entries = nil
		} else {
			return idx, nil
		}
	}

	if err := idx.saveLocked(); err != nil {
		return nil, fmt.Errorf("vectorindex: writing initial index: %w", err)
	}
	return idx, nil
}

// Path returns the on-disk path this index persists to.
func (idx *Index) Path() string { return idx.path }

// Dimensions returns the vector dimensionality this index was built with.
func (idx *Index) Dimensions() int { return idx.dimensions }

// Metric returns "l2" or "cosine".
func (idx *Index) Metric() string { return idx.metric }

// Count returns the number of vectors currently held.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *Index) loadLocked() error {
	f, err := os.Open(idx.path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	h, err := readHeader(br)
	if err != nil {
		return err
	}
	if int(h.Dimensions) != idx.dimensions && idx.dimensions != 0 {
		return fmt.Errorf("dimension mismatch: file has %d, expected %d", h.Dimensions, idx.dimensions)
	}
	if fileMetric := metricName(h.Metric); idx.metric != "" && fileMetric != idx.metric {
		return fmt.Errorf("metric mismatch: file has %q, expected %q", fileMetric, idx.metric)
	}

	entries := make([]Entry, 0, h.Count)
	for i := uint32(0); i < h.Count; i++ {
		id, vec, err := readRecord(br, int(h.Dimensions))
		if err != nil {
			return fmt.Errorf("reading record %d: %w", i, err)
		}
		entries = append(entries, Entry{ID: id, Vector: vec})
	}

	idx.mu.Lock()
	idx.dimensions = int(h.Dimensions)
	idx.metric = metricName(h.Metric)
	idx.entries = entries
	idx.mu.Unlock()

	if stat, err := os.Stat(idx.path); err == nil {
		idx.mu.Lock()
		idx.lastMtime = stat.ModTime()
		idx.mu.Unlock()
	}
	return nil
}

// saveLocked atomically persists the in-memory entries to idx.path via a
// write-then-rename into a sibling temp file, fsyncing before close so the
// rename is guaranteed to see durable data (SPEC_FULL.md §9: optional
// stronger-guarantee fsync note, exercised here unconditionally since the
// index is the one artifact with no WAL to fall back on).
func (idx *Index) saveLocked() error {
	dir := filepath.Dir(idx.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(idx.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	writeErr := func() error {
		bw := bufio.NewWriter(tmp)
		h := header{
			Magic:      fileMagic,
			Version:    formatVersion,
			Dimensions: uint32(idx.dimensions),
			Metric:     metricByte(idx.metric),
			Count:      uint32(len(idx.entries)),
		}
		if err := writeHeader(bw, h); err != nil {
			return err
		}
		for _, e := range idx.entries {
			if err := writeRecord(bw, e.ID, e.Vector); err != nil {
				return err
			}
		}
		return bw.Flush()
	}()

	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing index: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp index file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, idx.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming index into place: %w", err)
	}

	if stat, err := os.Stat(idx.path); err == nil {
		idx.lastMtime = stat.ModTime()
	}
	return nil
}

func (idx *Index) withLock(fn func() error) error {
	fl := flock.New(idx.lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("vectorindex: acquire lock: %w", err)
	}
	defer fl.Unlock()
	return fn()
}

// Add appends a single (id, vector) entry and persists the index.
func (idx *Index) Add(id int64, vec []float32) error {
	return idx.AddBatch([]Entry{{ID: id, Vector: vec}})
}

// AddBatch appends multiple entries in one locked, single-write operation -
// the Go equivalent of the original's add_batch optimization.
func (idx *Index) AddBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return idx.withLock(func() error {
		idx.reloadIfStaleLocked()

		idx.mu.Lock()
		defer idx.mu.Unlock()

		if idx.dimensions == 0 && len(entries) > 0 {
			idx.dimensions = len(entries[0].Vector)
		}
		for _, e := range entries {
			if len(e.Vector) != idx.dimensions {
				return fmt.Errorf("vectorindex: vector dimension %d does not match index dimension %d", len(e.Vector), idx.dimensions)
			}
		}
		idx.entries = append(idx.entries, entries...)
		return idx.saveLocked()
	})
}

// Remove deletes all entries matching id (normally exactly one) and
// persists the index.
func (idx *Index) Remove(id int64) error {
	return idx.withLock(func() error {
		idx.reloadIfStaleLocked()

		idx.mu.Lock()
		defer idx.mu.Unlock()

		kept := idx.entries[:0]
		for _, e := range idx.entries {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		idx.entries = kept
		return idx.saveLocked()
	})
}

// Replace atomically removes id (if present) and adds the new vector under
// the same id, matching update_document's remove_ids + add_with_ids pair.
func (idx *Index) Replace(id int64, vec []float32) error {
	return idx.withLock(func() error {
		idx.reloadIfStaleLocked()

		idx.mu.Lock()
		defer idx.mu.Unlock()

		kept := idx.entries[:0]
		for _, e := range idx.entries {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		idx.entries = append(kept, Entry{ID: id, Vector: vec})
		return idx.saveLocked()
	})
}

// reloadIfStaleLocked reloads from disk if the on-disk mtime is newer than
// what this Index instance last saw - the same freshness check the
// original performs outside its main lock before search.
func (idx *Index) reloadIfStaleLocked() {
	stat, err := os.Stat(idx.path)
	if err != nil {
		return
	}
	idx.mu.RLock()
	stale := stat.ModTime().After(idx.lastMtime)
	idx.mu.RUnlock()
	if !stale {
		return
	}
	if err := idx.loadLocked(); err != nil {
		logging.StoreWarn("vectorindex: reload failed: %v", err)
	}
}

// ReloadIfStale is the public, lock-guarded freshness check callers should
// run before Search, mirroring the original's pre-search mtime comparison.
func (idx *Index) ReloadIfStale() {
	_ = idx.withLock(func() error {
		idx.reloadIfStaleLocked()
		return nil
	})
}

// Search returns the topK closest entries to query by the index's metric,
// scored and ordered with cosine similarity descending or L2 distance
// ascending as appropriate. It does not apply a threshold - callers filter.
func (idx *Index) Search(query []float32, topK int) ([]Match, error) {
	if len(query) != idx.dimensions {
		return nil, fmt.Errorf("vectorindex: query dimension %d does not match index dimension %d", len(query), idx.dimensions)
	}

	idx.mu.RLock()
	entries := make([]Entry, len(idx.entries))
	copy(entries, idx.entries)
	metric := idx.metric
	idx.mu.RUnlock()

	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		score, err := scoreVector(query, e.Vector, metric)
		if err != nil {
			continue
		}
		matches = append(matches, Match{ID: e.ID, Score: score})
	}

	ascending := metric != "cosine"
	sortMatches(matches, ascending)

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func scoreVector(a, b []float32, metric string) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch")
	}
	if metric == "cosine" {
		var dot, am, bm float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			am += float64(a[i]) * float64(a[i])
			bm += float64(b[i]) * float64(b[i])
		}
		if am == 0 || bm == 0 {
			return 0, nil
		}
		return dot / (math.Sqrt(am) * math.Sqrt(bm)), nil
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// sortMatches insertion-sorts matches in place - ascending by Score for L2
// distance, descending for cosine similarity. Mirrors the simple sort
// FindTopK uses in internal/embedding; result sets here are small (top-k*3
// at most) so quadratic behavior is not a concern.
func sortMatches(matches []Match, ascending bool) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0; j-- {
			outOfOrder := matches[j-1].Score > matches[j].Score
			if !ascending {
				outOfOrder = matches[j-1].Score < matches[j].Score
			}
			if !outOfOrder {
				break
			}
			matches[j-1], matches[j] = matches[j], matches[j-1]
		}
	}
}

// RebuildFromDocuments replaces the entire index content with freshly
// encoded vectors, used at startup when the file is missing or corrupt and
// by the explicit recovery path - the Go analogue of
// _rebuild_vectors_from_db.
func (idx *Index) RebuildFromDocuments(entries []Entry) error {
	return idx.withLock(func() error {
		idx.mu.Lock()
		defer idx.mu.Unlock()

		idx.entries = entries
		if len(entries) > 0 {
			idx.dimensions = len(entries[0].Vector)
		}
		return idx.saveLocked()
	})
}

// Clear removes the index and lock files from disk. Callers are expected to
// construct a fresh Index via Open afterward, matching clear()'s
// remove-then-reinitialize pattern.
func (idx *Index) Clear() error {
	idx.mu.Lock()
	idx.entries = nil
	idx.mu.Unlock()

	if err := os.Remove(idx.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing index file: %w", err)
	}
	if err := os.Remove(idx.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing index lock file: %w", err)
	}
	return nil
}
