package flat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeenko/docqa/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIndex(t *testing.T, dim int) *Index {
	t.Helper()
	idx, err := New(t.TempDir(), dim, testLogger())
	require.NoError(t, err)
	return idx
}

func vec(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func passage(id string, docID int64, text string) domain.Passage {
	return domain.Passage{ID: id, Text: text, DocID: docID}
}

func TestInsertAndSearchOrdersByDistance(t *testing.T) {
	idx := testIndex(t, 4)
	ctx := context.Background()

	err := idx.Insert(ctx,
		[]domain.Passage{
			passage("1_0", 1, "near"),
			passage("1_1", 1, "far"),
			passage("1_2", 1, "mid"),
		},
		[][]float32{vec(4, 0.1), vec(4, 5), vec(4, 1)},
	)
	require.NoError(t, err)

	got, err := idx.Search(ctx, vec(4, 0), 3, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "near", got[0].Text)
	assert.Equal(t, "mid", got[1].Text)
	assert.Equal(t, "far", got[2].Text)
	assert.Greater(t, got[0].Score, got[1].Score)
	// d² = 4·0.1² = 0.04, score = 1/1.04
	assert.InDelta(t, 1/1.04, got[0].Score, 1e-9)
}

func TestInsertEmptyBatchIsNoOp(t *testing.T) {
	idx := testIndex(t, 4)
	require.NoError(t, idx.Insert(context.Background(), nil, nil))
	assert.Equal(t, 0, idx.Size())
}

func TestInsertRejectsMisalignedBatch(t *testing.T) {
	idx := testIndex(t, 4)
	err := idx.Insert(context.Background(), []domain.Passage{passage("1_0", 1, "a")}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	idx := testIndex(t, 4)
	err := idx.Insert(context.Background(), []domain.Passage{passage("1_0", 1, "a")}, [][]float32{vec(3, 1)})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestSearchFiltersByDocument(t *testing.T) {
	idx := testIndex(t, 4)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx,
		[]domain.Passage{passage("1_0", 1, "doc one"), passage("2_0", 2, "doc two")},
		[][]float32{vec(4, 0.1), vec(4, 0.2)},
	))

	two := int64(2)
	got, err := idx.Search(ctx, vec(4, 0), 5, &two)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc two", got[0].Text)
	require.NotNil(t, got[0].DocID)
	assert.Equal(t, int64(2), *got[0].DocID)
}

func TestSearchDocFilterScansFullRanking(t *testing.T) {
	idx := testIndex(t, 4)
	ctx := context.Background()

	// Twelve close passages for document one push the single passage of
	// document two far down the ranking.
	passages := make([]domain.Passage, 0, 13)
	vectors := make([][]float32, 0, 13)
	for i := 0; i < 12; i++ {
		passages = append(passages, passage(fmt.Sprintf("1_%d", i), 1, fmt.Sprintf("close passage %d", i)))
		vectors = append(vectors, vec(4, 0.1))
	}
	passages = append(passages, passage("2_0", 2, "buried passage"))
	vectors = append(vectors, vec(4, 3))
	require.NoError(t, idx.Insert(ctx, passages, vectors))

	two := int64(2)
	got, err := idx.Search(ctx, vec(4, 0), 3, &two)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "buried passage", got[0].Text)
	// d² = 4·3² = 36, score 1/37, above the floor.
	assert.InDelta(t, 1.0/37.0, got[0].Score, 1e-9)
}

func TestSearchAppliesScoreFloorButSearchBestDoesNot(t *testing.T) {
	idx := testIndex(t, 4)
	ctx := context.Background()

	// d² = 4·100² = 40000, score ≈ 2.5e-5, below the floor.
	require.NoError(t, idx.Insert(ctx,
		[]domain.Passage{passage("1_0", 1, "distant")},
		[][]float32{vec(4, 100)},
	))

	got, err := idx.Search(ctx, vec(4, 0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	best, err := idx.SearchBest(ctx, vec(4, 0), 5, nil)
	require.NoError(t, err)
	require.Len(t, best, 1)
	assert.Equal(t, "distant", best[0].Text)
}

func TestPersistenceRoundtrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := New(dir, 4, testLogger())
	require.NoError(t, err)
	page := 2
	require.NoError(t, idx.Insert(ctx,
		[]domain.Passage{{ID: "1_0", Text: "persisted", DocID: 1, Page: &page}},
		[][]float32{vec(4, 0.5)},
	))

	for _, name := range []string{vectorsFile, manifestFile, metadataFile} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		require.NoError(t, statErr, "artifact %s", name)
	}

	reloaded, err := New(dir, 4, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Size())

	got, err := reloaded.Search(ctx, vec(4, 0.5), 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].Text)
	require.NotNil(t, got[0].Page)
	assert.Equal(t, 2, *got[0].Page)
}

func TestConcurrentHandlesMergePersistedInserts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := New(dir, 4, testLogger())
	require.NoError(t, err)
	second, err := New(dir, 4, testLogger())
	require.NoError(t, err)

	require.NoError(t, first.Insert(ctx,
		[]domain.Passage{passage("1_0", 1, "from first")}, [][]float32{vec(4, 0.1)}))
	require.NoError(t, second.Insert(ctx,
		[]domain.Passage{passage("2_0", 2, "from second")}, [][]float32{vec(4, 0.2)}))

	// The second writer must fold in the first writer's persisted row
	// instead of rewriting the artifacts from its own view alone.
	reloaded, err := New(dir, 4, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Size())

	got, err := reloaded.Search(ctx, vec(4, 0), 5, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestReadSeesInsertsFromAnotherHandle(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	reader, err := New(dir, 4, testLogger())
	require.NoError(t, err)
	writer, err := New(dir, 4, testLogger())
	require.NoError(t, err)

	require.NoError(t, writer.Insert(ctx,
		[]domain.Passage{passage("1_0", 1, "fresh")}, [][]float32{vec(4, 0.3)}))

	assert.Equal(t, 1, reader.Size())
	got, err := reader.Search(ctx, vec(4, 0.3), 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Text)
}

func TestLoadFallsBackOnManifestMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := New(dir, 4, testLogger())
	require.NoError(t, err)
	require.NoError(t, idx.Insert(ctx,
		[]domain.Passage{passage("1_0", 1, "first"), passage("1_1", 1, "second")},
		[][]float32{vec(4, 0.1), vec(4, 0.2)},
	))

	// Truncate the manifest so it disagrees with the vector count.
	broken, err := json.Marshal([]string{"1_0"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFile), broken, 0o644))

	reloaded, err := New(dir, 4, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Size())

	got, err := reloaded.Search(ctx, vec(4, 0.1), 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
}
