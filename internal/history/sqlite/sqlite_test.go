package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcdeck/internal/history"
)

func TestSQLiteSinkRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	sink, err := New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, sink.Close()) }()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, sink.Send(ctx, history.Event{
		Name: "siegengin", Kind: "process", Action: "restart", OK: true,
		Message: "restart initiated", OccurredAt: base,
	}))
	require.NoError(t, sink.Send(ctx, history.Event{
		Name: "web", Kind: "unit", Action: "stop", OK: false,
		Message: "stop failed", OccurredAt: base.Add(10 * time.Second),
	}))

	got, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "web", got[0].Name)
	assert.False(t, got[0].OK)
	assert.Equal(t, "stop failed", got[0].Message)
	assert.Equal(t, "siegengin", got[1].Name)
	assert.True(t, got[1].OK)
}

func TestSQLiteSinkInMemory(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	require.NoError(t, sink.Send(context.Background(), history.Event{Name: "a", Kind: "unit", Action: "start", OccurredAt: time.Now()}))

	got, err := sink.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteSinkEmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
