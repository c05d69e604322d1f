package message

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetention(t *testing.T) {
	t.Parallel()

	d, err := ParseRetention("")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseRetention("720h")
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, d)

	_, err = ParseRetention("a month")
	assert.Error(t, err)
	_, err = ParseRetention("-1h")
	assert.Error(t, err)
}

func TestNewRetentionRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	_, err := NewRetention(nil, NewMemoryBackend(), "every tuesday", time.Hour)
	assert.Error(t, err)

	r, err := NewRetention(nil, NewMemoryBackend(), "every tuesday", 0)
	require.NoError(t, err)
	assert.False(t, r.Enabled())
}

func TestRetentionRunOncePurgesOldRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend()
	store := NewStore(nil, backend)

	old := created("old")
	old.MessageID = "old"
	old.CapturedAt = now.Add(-48 * time.Hour)
	old.LastModifiedAt = old.CapturedAt
	fresh := created("fresh")
	fresh.MessageID = "fresh"
	fresh.CapturedAt = now.Add(-time.Hour)
	fresh.LastModifiedAt = fresh.CapturedAt
	require.NoError(t, store.Put(ctx, old))
	require.NoError(t, store.Put(ctx, fresh))

	r, err := NewRetention(nil, store, "@daily", 24*time.Hour)
	require.NoError(t, err)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.Get(ctx, "c1", "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "c1", "fresh")
	assert.NoError(t, err)
}

func TestRetentionStartStop(t *testing.T) {
	t.Parallel()

	r, err := NewRetention(nil, NewMemoryBackend(), "@hourly", time.Hour)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	require.NoError(t, r.Stop(context.Background()))
}
