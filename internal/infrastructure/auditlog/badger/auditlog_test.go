package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLogAndListDocuments(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.LogDocument(ctx, "https://example.com/a.pdf", 1))
	require.NoError(t, l.LogDocument(ctx, "https://example.com/b.pdf", 2))

	docs, err := l.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://example.com/a.pdf", docs[0].URL)
	assert.Equal(t, int64(2), docs[1].DocID)
}

func TestListQueriesFiltersByDocument(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.LogQuery(ctx, 1, "what is the cgpa cutoff?", "7.5"))
	require.NoError(t, l.LogQuery(ctx, 2, "list the prerequisites", "none"))

	one := int64(1)
	queries, err := l.ListQueries(ctx, &one)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "what is the cgpa cutoff?", queries[0].Question)

	all, err := l.ListQueries(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
