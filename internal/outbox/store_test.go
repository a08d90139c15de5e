package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/User159951/IntelliPM-sub015/internal/model"
)

func newTestStore(t *testing.T, now time.Time) (*Store, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.OutboxEntry{}))
	return NewStore(db, func() time.Time { return now }, zap.NewNop().Sugar()), db
}

func TestEnqueue_DedupKeyYieldsSingleEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, db := newTestStore(t, now)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, db, "TaskCreated", `{"task_id":1}`, "task-created-1")
	assert.NoError(t, err)
	// retried command enqueues the same logical occurrence again
	_, err = store.Enqueue(ctx, db, "TaskCreated", `{"task_id":1}`, "task-created-1")
	assert.NoError(t, err)

	var n int64
	assert.NoError(t, db.Model(&model.OutboxEntry{}).Where("dedup_key = ?", "task-created-1").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestEnqueue_EmptyDedupKeyRejected(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, db := newTestStore(t, now)

	_, err := store.Enqueue(context.Background(), db, "TaskCreated", `{}`, "")
	assert.ErrorIs(t, err, ErrEmptyDedupKey)
}

func TestClaimBatch_SecondClaimantGetsNothing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, db := newTestStore(t, now)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, db, "TaskCreated", `{"task_id":1}`, "task-created-1")
	assert.NoError(t, err)
	_, err = store.Enqueue(ctx, db, "TaskCreated", `{"task_id":2}`, "task-created-2")
	assert.NoError(t, err)

	// a second instance polling the same table
	other := NewStore(db, func() time.Time { return now }, zap.NewNop().Sugar())

	first, err := store.ClaimBatch(ctx, 10, now, time.Minute)
	assert.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := other.ClaimBatch(ctx, 10, now, time.Minute)
	assert.NoError(t, err)
	assert.Empty(t, second)
}

func TestClaimBatch_ReclaimsEntryWhoseLeaseExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, db := newTestStore(t, now)
	ctx := context.Background()

	e, err := store.Enqueue(ctx, db, "TaskCreated", `{"task_id":1}`, "task-created-1")
	assert.NoError(t, err)

	claimed, err := store.ClaimBatch(ctx, 10, now, 10*time.Second)
	assert.NoError(t, err)
	assert.Len(t, claimed, 1)

	// the claimant crashed without finishing; inside the lease the entry
	// stays invisible to other instances
	claimed, err = store.ClaimBatch(ctx, 10, now.Add(5*time.Second), 10*time.Second)
	assert.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = store.ClaimBatch(ctx, 10, now.Add(11*time.Second), 10*time.Second)
	assert.NoError(t, err)
	assert.Len(t, claimed, 1)
	assert.Equal(t, e.ID, claimed[0].ID)

	var stored model.OutboxEntry
	assert.NoError(t, db.First(&stored, e.ID).Error)
	assert.Equal(t, model.OutboxProcessing, stored.Status)
}

func TestClaimBatch_SkipsEntriesInsideBackoffWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, db := newTestStore(t, now)
	ctx := context.Background()

	e, err := store.Enqueue(ctx, db, "TaskCreated", `{"task_id":1}`, "task-created-1")
	assert.NoError(t, err)
	assert.NoError(t, store.Requeue(ctx, e.ID, 1, "boom", now.Add(4*time.Second)))

	claimed, err := store.ClaimBatch(ctx, 10, now, time.Minute)
	assert.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = store.ClaimBatch(ctx, 10, now.Add(5*time.Second), time.Minute)
	assert.NoError(t, err)
	assert.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].RetryCount)
}

func TestClaimBatch_OldestFirst(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, db := newTestStore(t, now)
	ctx := context.Background()

	for i, key := range []string{"a", "b", "c"} {
		entry := &model.OutboxEntry{
			MessageType:   "TaskCreated",
			Payload:       `{}`,
			DedupKey:      key,
			Status:        model.OutboxPending,
			NextAttemptAt: now,
			CreatedAt:     now.Add(time.Duration(i) * time.Second),
		}
		assert.NoError(t, db.Create(entry).Error)
	}

	claimed, err := store.ClaimBatch(ctx, 2, now.Add(time.Hour), time.Minute)
	assert.NoError(t, err)
	assert.Len(t, claimed, 2)
	assert.Equal(t, "a", claimed[0].DedupKey)
	assert.Equal(t, "b", claimed[1].DedupKey)
}

func TestMarkProcessed_ExcludedFromFuturePolling(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, db := newTestStore(t, now)
	ctx := context.Background()

	e, err := store.Enqueue(ctx, db, "TaskCreated", `{"task_id":1}`, "task-created-1")
	assert.NoError(t, err)

	claimed, err := store.ClaimBatch(ctx, 10, now, time.Minute)
	assert.NoError(t, err)
	assert.Len(t, claimed, 1)
	assert.NoError(t, store.MarkProcessed(ctx, e.ID, now))

	var stored model.OutboxEntry
	assert.NoError(t, db.First(&stored, e.ID).Error)
	assert.Equal(t, model.OutboxProcessed, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	claimed, err = store.ClaimBatch(ctx, 10, now.Add(time.Hour), time.Minute)
	assert.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestDeadLetterVisibility(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, db := newTestStore(t, now)
	ctx := context.Background()

	e, err := store.Enqueue(ctx, db, "TaskCreated", `{"task_id":1}`, "task-created-1")
	assert.NoError(t, err)
	assert.NoError(t, store.MarkDeadLettered(ctx, e.ID, 5, "missing aggregate"))

	n, err := store.FailedCount(ctx)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, n)

	failed, err := store.ListFailed(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, failed, 1)
	assert.Equal(t, 5, failed[0].RetryCount)
	assert.NotNil(t, failed[0].LastError)
	assert.Equal(t, "missing aggregate", *failed[0].LastError)
}
