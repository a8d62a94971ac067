package flat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/avdeenko/docqa/internal/core/domain"
)

const (
	DefaultDimension = 384

	vectorsFile  = "vectors.gob"
	manifestFile = "vector_ids.json"
	metadataFile = "passage_metadata.json"
	lockFile     = "index.lock"

	// minScore hides near-noise matches from the normal search path.
	// SearchBest ignores it.
	minScore = 0.01
)

// Index is a flat exhaustive L2 index over fixed-dimension vectors. Every
// insert rewrites three artifacts together: the vector blob, the id manifest
// and the passage metadata map. The manifest pins vector order; the metadata
// map carries the text each vector stands for.
//
// Several processes may open the same directory. An advisory file lock
// serializes writers across processes, a writer folds in whatever reached
// the artifacts since its last look before appending, and readers reload
// when the artifacts advance.
type Index struct {
	mu     sync.RWMutex
	dim    int
	dir    string
	logger *slog.Logger

	fileLock *flock.Flock
	stamp    artifactStamp

	vectors  [][]float32
	manifest []string
	metadata map[string]domain.Passage
}

func New(dir string, dim int, logger *slog.Logger) (*Index, error) {
	if dim <= 0 {
		dim = DefaultDimension
	}
	if dir == "" {
		dir = "./data/index"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "vector index: create dir", err)
	}
	idx := &Index{
		dim:      dim,
		dir:      dir,
		logger:   logger,
		fileLock: flock.New(filepath.Join(dir, lockFile)),
		metadata: map[string]domain.Passage{},
	}
	if err := idx.fileLock.RLock(); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "vector index: lock dir", err)
	}
	defer func() { _ = idx.fileLock.Unlock() }()
	if err := idx.load(); err != nil {
		return nil, err
	}
	idx.stamp = idx.currentStamp()
	return idx, nil
}

// Insert appends a batch. Passages and vectors must align; an empty batch is
// a no-op. The in-memory state and the on-disk artifacts move together under
// one writer lock, so readers never observe a manifest that disagrees with
// the vector count.
func (idx *Index) Insert(_ context.Context, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) == 0 {
		return nil
	}
	if len(passages) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "vector index: insert", errBatchMismatch)
	}
	for _, v := range vectors {
		if len(v) != idx.dim {
			return domain.WrapError(domain.ErrInvalidInput, "vector index: insert", errDimensionMismatch)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.fileLock.Lock(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "vector index: lock dir", err)
	}
	defer func() { _ = idx.fileLock.Unlock() }()

	// Another process may have persisted since our last look; start from
	// the artifacts so the append does not erase its rows.
	idx.reloadIfStale()

	for i, p := range passages {
		idx.vectors = append(idx.vectors, vectors[i])
		idx.manifest = append(idx.manifest, p.ID)
		idx.metadata[p.ID] = p
	}
	if err := idx.persist(); err != nil {
		// The in-memory index stays serviceable; the artifacts catch up on
		// the next successful insert.
		idx.logger.Warn("vector index persist failed", "error", err)
	}
	idx.stamp = idx.currentStamp()
	return nil
}

// Search returns the topK best-scoring passages above the score floor.
func (idx *Index) Search(_ context.Context, queryVector []float32, topK int, docID *int64) ([]domain.Candidate, error) {
	return idx.search(queryVector, topK, docID, minScore)
}

// SearchBest is the last-resort variant without the score floor.
func (idx *Index) SearchBest(_ context.Context, queryVector []float32, topK int, docID *int64) ([]domain.Candidate, error) {
	return idx.search(queryVector, topK, docID, 0)
}

// Passages returns a snapshot of the indexed passages in manifest order.
// Lexical search runs over this snapshot.
func (idx *Index) Passages() []domain.Passage {
	idx.refresh()
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]domain.Passage, 0, len(idx.manifest))
	seen := make(map[string]struct{}, len(idx.manifest))
	for _, id := range idx.manifest {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := idx.metadata[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (idx *Index) Size() int {
	idx.refresh()
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// refresh picks up inserts persisted by other processes before a read.
func (idx *Index) refresh() {
	idx.mu.RLock()
	stale := idx.currentStamp() != idx.stamp
	idx.mu.RUnlock()
	if !stale {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.fileLock.RLock(); err != nil {
		idx.logger.Warn("vector index refresh lock failed", "error", err)
		return
	}
	defer func() { _ = idx.fileLock.Unlock() }()
	idx.reloadIfStale()
}

// reloadIfStale rereads the artifacts when another process advanced them.
// Callers hold the write lock and the file lock. Rows this handle never
// managed to persist are dropped here; once a second writer moved the
// artifacts they are authoritative.
func (idx *Index) reloadIfStale() {
	current := idx.currentStamp()
	if current == idx.stamp {
		return
	}
	idx.vectors = nil
	idx.manifest = nil
	idx.metadata = map[string]domain.Passage{}
	if err := idx.load(); err != nil {
		idx.logger.Warn("vector index reload failed", "error", err)
	}
	idx.stamp = current
}

type scored struct {
	pos   int
	score float64
}

func (idx *Index) search(queryVector []float32, topK int, docID *int64, floor float64) ([]domain.Candidate, error) {
	if len(queryVector) != idx.dim {
		return nil, domain.WrapError(domain.ErrInvalidInput, "vector index: search", errDimensionMismatch)
	}
	if topK <= 0 {
		return nil, nil
	}

	idx.refresh()
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return nil, nil
	}

	// The doc filter and score floor run over the full ranking, so a
	// filtered search cannot be starved by higher-ranking passages from
	// other documents.
	all := make([]scored, 0, len(idx.vectors))
	for i, v := range idx.vectors {
		all = append(all, scored{pos: i, score: 1 / (1 + l2sq(queryVector, v))})
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })

	out := make([]domain.Candidate, 0, topK)
	for _, s := range all {
		passage, ok := idx.metadata[idx.manifest[s.pos]]
		if !ok {
			continue
		}
		if docID != nil && passage.DocID != *docID {
			continue
		}
		if s.score < floor {
			continue
		}
		doc := passage.DocID
		out = append(out, domain.Candidate{
			Text:  passage.Text,
			Score: s.score,
			Page:  passage.Page,
			DocID: &doc,
		})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// l2sq is the squared euclidean distance.
func l2sq(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
