package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInsertAndRecent(t *testing.T) {
	c := newTestClient(t)

	first := &Record{
		ID:         "a",
		Question:   "how many users",
		Backend:    "postgres",
		Intent:     "aggregation",
		Confidence: 0.75,
		Query:      "select count(*) from users limit 100",
		Status:     "success",
		RowCount:   1,
		LatencyMS:  120,
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	second := &Record{
		ID:        "b",
		Question:  "delete everything",
		Backend:   "postgres",
		Status:    "safety_rejected",
		Error:     "only SELECT statements are allowed",
		CreatedAt: time.Now(),
	}

	require.NoError(t, c.Insert(first))
	require.NoError(t, c.Insert(second))

	records, err := c.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "safety_rejected", records[0].Status)
	assert.Equal(t, "a", records[1].ID)
	assert.Equal(t, 0.75, records[1].Confidence)
}

func TestRecentClampsLimit(t *testing.T) {
	c := newTestClient(t)

	records, err := c.Recent(-5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInsertDuplicateIDFails(t *testing.T) {
	c := newTestClient(t)

	rec := &Record{ID: "dup", Question: "q", Backend: "postgres", Status: "success", CreatedAt: time.Now()}
	require.NoError(t, c.Insert(rec))
	assert.Error(t, c.Insert(rec))
}
