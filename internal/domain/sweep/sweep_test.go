package sweep

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSummary_HasAllCategories(t *testing.T) {
	s := NewSummary(ModePreview, time.Now())

	require.Len(t, s.Categories, len(Categories))
	for _, c := range Categories {
		require.NotNil(t, s.Categories[c])
		assert.Equal(t, 0, s.Categories[c].Count)
		assert.NotNil(t, s.Categories[c].IDs)
	}
	assert.Equal(t, 0, s.Total())
}

func TestSummary_Add(t *testing.T) {
	s := NewSummary(ModeExecute, time.Now())
	a, b := uuid.New(), uuid.New()

	s.Add(CategoryExpiredRequests, a)
	s.Add(CategoryOrphanedLive, b)
	s.Add(CategoryOrphanedLive, a)

	assert.Equal(t, 1, s.Categories[CategoryExpiredRequests].Count)
	assert.Equal(t, []uuid.UUID{b, a}, s.Categories[CategoryOrphanedLive].IDs)
	assert.Equal(t, 3, s.Total())
}
