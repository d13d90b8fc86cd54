package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 5, Pagination{PageSize: 5}.Limit())
}

func TestBuildPageInfo(t *testing.T) {
	rows := []int64{50, 40, 30}
	p := Pagination{PageSize: 2}

	page, info := BuildPageInfo(rows, p, func(v int64) int64 { return v })
	assert.Equal(t, []int64{50, 40}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "40", cursor.ID)

	page, info = BuildPageInfo(rows[:2], p, func(v int64) int64 { return v })
	assert.Len(t, page, 2)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}
