package flat

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/avdeenko/docqa/internal/core/domain"
)

var (
	errBatchMismatch     = errors.New("passage and vector counts differ")
	errDimensionMismatch = errors.New("vector dimension mismatch")
)

type vectorBlob struct {
	Dim     int
	Vectors [][]float32
}

// artifactStamp fingerprints the on-disk artifacts so handles can tell when
// another process has advanced them.
type artifactStamp struct {
	manifestSize int64
	manifestMod  int64
	vectorsSize  int64
	vectorsMod   int64
}

func (idx *Index) currentStamp() artifactStamp {
	var s artifactStamp
	if fi, err := os.Stat(filepath.Join(idx.dir, manifestFile)); err == nil {
		s.manifestSize = fi.Size()
		s.manifestMod = fi.ModTime().UnixNano()
	}
	if fi, err := os.Stat(filepath.Join(idx.dir, vectorsFile)); err == nil {
		s.vectorsSize = fi.Size()
		s.vectorsMod = fi.ModTime().UnixNano()
	}
	return s
}

// persist writes the three artifacts. Callers hold the write lock.
func (idx *Index) persist() error {
	blob, err := os.Create(filepath.Join(idx.dir, vectorsFile))
	if err != nil {
		return fmt.Errorf("create vectors blob: %w", err)
	}
	defer blob.Close()
	if err := gob.NewEncoder(blob).Encode(vectorBlob{Dim: idx.dim, Vectors: idx.vectors}); err != nil {
		return fmt.Errorf("encode vectors blob: %w", err)
	}

	if err := writeJSON(filepath.Join(idx.dir, manifestFile), idx.manifest); err != nil {
		return fmt.Errorf("write id manifest: %w", err)
	}
	if err := writeJSON(filepath.Join(idx.dir, metadataFile), idx.metadata); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// load restores the artifacts. A manifest that disagrees with the vector
// count is not fatal: the index falls back to the metadata keys and keeps
// serving.
func (idx *Index) load() error {
	blob, err := os.Open(filepath.Join(idx.dir, vectorsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "vector index: open blob", err)
	}
	defer blob.Close()

	var stored vectorBlob
	if err := gob.NewDecoder(blob).Decode(&stored); err != nil {
		return domain.WrapError(domain.ErrTemporary, "vector index: decode blob", err)
	}
	if stored.Dim != idx.dim {
		return domain.WrapError(domain.ErrInvalidInput, "vector index: load", errDimensionMismatch)
	}
	idx.vectors = stored.Vectors

	if err := readJSON(filepath.Join(idx.dir, metadataFile), &idx.metadata); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.WrapError(domain.ErrTemporary, "vector index: read metadata", err)
	}
	if idx.metadata == nil {
		idx.metadata = map[string]domain.Passage{}
	}

	if err := readJSON(filepath.Join(idx.dir, manifestFile), &idx.manifest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.WrapError(domain.ErrTemporary, "vector index: read manifest", err)
	}

	if len(idx.manifest) != len(idx.vectors) {
		idx.logger.Warn("vector id manifest length mismatch, falling back to metadata key order",
			"manifest", len(idx.manifest), "vectors", len(idx.vectors))
		idx.manifest = metadataKeyOrder(idx.metadata)
		if len(idx.manifest) > len(idx.vectors) {
			idx.manifest = idx.manifest[:len(idx.vectors)]
		}
		for len(idx.manifest) < len(idx.vectors) {
			idx.vectors = idx.vectors[:len(idx.vectors)-1]
		}
	}
	return nil
}

// metadataKeyOrder approximates the original insertion order: passage ids
// sort by document then sequence, so an ordered walk over the keys recovers
// the order the vectors were appended in.
func metadataKeyOrder(metadata map[string]domain.Passage) []string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		pa, pb := metadata[keys[a]], metadata[keys[b]]
		if pa.DocID != pb.DocID {
			return pa.DocID < pb.DocID
		}
		return passageSeq(keys[a]) < passageSeq(keys[b])
	})
	return keys
}

func passageSeq(id string) int {
	seq := 0
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '_' {
			fmt.Sscanf(id[i+1:], "%d", &seq)
			break
		}
	}
	return seq
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(v)
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
