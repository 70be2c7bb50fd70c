package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportAndSnapshot(t *testing.T) {
	s := NewStore(time.Minute)

	s.Report("req-1", StageSchema, 10, "loading schema")
	s.Report("req-1", StageIntent, 25, "")
	s.Report("req-2", StageSchema, 10, "")

	updates, ok := s.Snapshot("req-1")
	require.True(t, ok)
	require.Len(t, updates, 2)
	assert.Equal(t, StageSchema, updates[0].Stage)
	assert.Equal(t, StageIntent, updates[1].Stage)
	assert.Equal(t, 25, updates[1].Percent)
}

func TestSnapshotUnknownID(t *testing.T) {
	s := NewStore(time.Minute)

	_, ok := s.Snapshot("nope")
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(time.Minute)
	s.Report("req-1", StageSchema, 10, "")

	updates, _ := s.Snapshot("req-1")
	updates[0].Stage = "mutated"

	again, _ := s.Snapshot("req-1")
	assert.Equal(t, StageSchema, again[0].Stage)
}

func TestExpiredEntriesEvicted(t *testing.T) {
	s := NewStore(10 * time.Millisecond)

	s.Report("old", StageSchema, 10, "")
	time.Sleep(25 * time.Millisecond)
	s.Report("new", StageSchema, 10, "")

	_, ok := s.Snapshot("old")
	assert.False(t, ok)
	_, ok = s.Snapshot("new")
	assert.True(t, ok)
}

func TestReporterBindsID(t *testing.T) {
	s := NewStore(time.Minute)

	report := s.Reporter("req-9")
	report(StageDone, 100, "")

	updates, ok := s.Snapshot("req-9")
	require.True(t, ok)
	assert.Equal(t, StageDone, updates[0].Stage)
}
