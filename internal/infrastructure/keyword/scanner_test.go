package keyword

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeenko/docqa/internal/core/domain"
)

type staticSource []domain.Passage

func (s staticSource) Passages() []domain.Passage { return s }

func TestSearchScoresMatchesAndEarlyBonus(t *testing.T) {
	src := staticSource{
		{ID: "1_0", DocID: 1, Text: "Syllabus overview for the algorithms course"},
		{ID: "1_1", DocID: 1, Text: strings.Repeat("filler text ", 20) + "syllabus appears late here"},
		{ID: "1_2", DocID: 1, Text: "nothing relevant at all"},
	}
	s := NewScanner(src)

	got, err := s.Search(context.Background(), []string{"syllabus"}, nil, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Early occurrence: 0.5 + 0.3. Late occurrence: 0.5 only.
	assert.InDelta(t, 0.8, got[0].Score, 1e-9)
	assert.InDelta(t, 0.5, got[1].Score, 1e-9)
	assert.Contains(t, got[0].Text, "overview")
	for _, c := range got {
		assert.True(t, c.KeywordMatches)
	}
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	s := NewScanner(staticSource{{ID: "1_0", DocID: 1, Text: "CGPA requirement is 7.5"}})

	got, err := s.Search(context.Background(), []string{"cgpa"}, nil, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSearchFiltersByDocument(t *testing.T) {
	s := NewScanner(staticSource{
		{ID: "1_0", DocID: 1, Text: "grading policy"},
		{ID: "2_0", DocID: 2, Text: "grading policy"},
	})

	one := int64(1)
	got, err := s.Search(context.Background(), []string{"grading"}, &one, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].DocID)
	assert.Equal(t, int64(1), *got[0].DocID)
}

func TestSearchHonorsLimitAndDefault(t *testing.T) {
	var src staticSource
	for i := 0; i < 30; i++ {
		src = append(src, domain.Passage{ID: "1_x", DocID: 1, Text: "grading policy details"})
	}
	s := NewScanner(src)

	got, err := s.Search(context.Background(), []string{"grading"}, nil, 0)
	require.NoError(t, err)
	assert.Len(t, got, defaultLimit)

	got, err = s.Search(context.Background(), []string{"grading"}, nil, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSearchEmptyKeywords(t *testing.T) {
	s := NewScanner(staticSource{{ID: "1_0", DocID: 1, Text: "anything"}})
	got, err := s.Search(context.Background(), []string{"  ", ""}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractQueryKeywords(t *testing.T) {
	got := ExtractQueryKeywords("What is the CGPA requirement for admission?")
	assert.Equal(t, []string{"cgpa", "requirement", "admission"}, got)
}

func TestExtractQueryKeywordsDropsShortAndDuplicates(t *testing.T) {
	got := ExtractQueryKeywords("go go GO grading grading ml")
	assert.Equal(t, []string{"grading"}, got)
}
