package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/store"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := store.NewGormStore(db)
	require.NoError(t, s.Migrate())
	return NewTracker(s)
}

func TestSetOnlineCreatesStatusRow(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	before := time.Now()
	require.NoError(t, tr.SetOnline(ctx, "alice", true))

	status, err := tr.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, status.IsOnline)
	assert.False(t, status.LastSeen.Before(before))
}

func TestSetOfflineUpdatesLastSeen(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.SetOnline(ctx, "alice", true))
	first, err := tr.Get(ctx, "alice")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tr.SetOnline(ctx, "alice", false))

	second, err := tr.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, second.IsOnline)
	assert.True(t, second.LastSeen.After(first.LastSeen))
	assert.Equal(t, first.ID, second.ID, "status row is upserted, not duplicated")
}

func TestGetUnknownUser(t *testing.T) {
	tr := newTestTracker(t)

	_, err := tr.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrStatusNotFound)
}
