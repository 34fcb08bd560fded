package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAlert struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subjectId"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

func seedAlerts(t *testing.T, s Store) time.Time {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alerts := []testAlert{
		{ID: "a1", SubjectID: "u1", Timestamp: base},
		{ID: "a2", SubjectID: "u1", Timestamp: base.Add(500 * time.Millisecond)},
		{ID: "a3", SubjectID: "u2", Timestamp: base.Add(time.Second)},
		{ID: "a4", SubjectID: "u1", Timestamp: base.Add(2 * time.Second)},
	}
	for _, a := range alerts {
		created, err := s.PutIfAbsent(ctx, "alerts", a.ID, a)
		require.NoError(t, err)
		require.True(t, created)
	}
	return base
}

func recordIDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestMemoryStore_PutIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.PutIfAbsent(ctx, "alerts", "a1", testAlert{ID: "a1", SubjectID: "u1"})
	require.NoError(t, err)
	assert.True(t, created)

	// 相同键不覆盖
	created, err = s.PutIfAbsent(ctx, "alerts", "a1", testAlert{ID: "a1", SubjectID: "other"})
	require.NoError(t, err)
	assert.False(t, created)

	var got testAlert
	require.NoError(t, s.Get(ctx, "alerts", "a1", &got))
	assert.Equal(t, "u1", got.SubjectID)
}

func TestMemoryStore_UpdateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAlerts(t, s)

	require.NoError(t, s.Update(ctx, "alerts", "a2", map[string]any{"read": true}))

	var got testAlert
	require.NoError(t, s.Get(ctx, "alerts", "a2", &got))
	assert.True(t, got.Read)
	assert.Equal(t, "u1", got.SubjectID)

	err := s.Update(ctx, "alerts", "missing", map[string]any{"read": true})
	assert.True(t, errors.Is(err, ErrNotFound))

	err = s.Get(ctx, "alerts", "missing", &got)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_ListFilterOrderLimit(t *testing.T) {
	s := NewMemoryStore()
	seedAlerts(t, s)

	records, err := s.List(context.Background(), Query{
		Collection: "alerts",
		Where:      map[string]any{"subjectId": "u1"},
		OrderBy:    "timestamp",
		Desc:       true,
		Limit:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a4", "a2"}, recordIDs(records))

	records, err = s.List(context.Background(), Query{Collection: "alerts", OrderBy: "timestamp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3", "a4"}, recordIDs(records))

	records, err = s.List(context.Background(), Query{Collection: "empty"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx, Query{Collection: "streamSessions", Where: map[string]any{"active": true}})
	require.NoError(t, err)

	select {
	case snap := <-ch:
		assert.Empty(t, snap)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	_, err = s.PutIfAbsent(ctx, "streamSessions", "s1", map[string]any{"active": true})
	require.NoError(t, err)

	select {
	case snap := <-ch:
		assert.Equal(t, []string{"s1"}, recordIDs(snap))
	case <-time.After(time.Second):
		t.Fatal("no snapshot after change")
	}

	require.NoError(t, s.Update(ctx, "streamSessions", "s1", map[string]any{"active": false}))
	select {
	case snap := <-ch:
		assert.Empty(t, snap)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after update")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestApplyQuery_OrdersByTimeNotText(t *testing.T) {
	// RFC3339Nano 省略末尾零，文本排序会出错
	records := []Record{
		{ID: "x", Data: []byte(`{"timestamp":"2024-05-01T12:00:05Z"}`)},
		{ID: "y", Data: []byte(`{"timestamp":"2024-05-01T12:00:05.1Z"}`)},
	}
	out, err := applyQuery(records, Query{OrderBy: "timestamp", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, recordIDs(out))
}
