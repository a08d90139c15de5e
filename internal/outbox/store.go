package outbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/User159951/IntelliPM-sub015/internal/event"
	"github.com/User159951/IntelliPM-sub015/internal/model"
)

var ErrEmptyDedupKey = errors.New("outbox: dedup key required")

// Store persists delivery intent. Enqueue must run inside the same
// transaction as the business mutation it reports on; everything else runs
// against the store's own handle.
type Store struct {
	db  *gorm.DB
	now event.Clock
	log *zap.SugaredLogger
}

func NewStore(db *gorm.DB, now event.Clock, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, now: now, log: logger}
}

// Enqueue persists intent; it never delivers. The unique constraint on
// dedup_key makes a retried command's second enqueue a silent no-op, so the
// same logical occurrence yields exactly one deliverable entry.
func (s *Store) Enqueue(ctx context.Context, tx *gorm.DB, messageType, payload, dedupKey string) (*model.OutboxEntry, error) {
	if dedupKey == "" {
		return nil, ErrEmptyDedupKey
	}
	entry := &model.OutboxEntry{
		MessageType:   messageType,
		Payload:       payload,
		DedupKey:      dedupKey,
		Status:        model.OutboxPending,
		NextAttemptAt: s.now(),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		s.log.Debugf("outbox entry deduped key=%s type=%s", dedupKey, messageType)
	}
	return entry, nil
}

// ClaimBatch selects the oldest deliverable entries and transitions each to
// Processing with a per-row compare-and-set, so two processor instances can
// never both hold the same entry. A claim is a lease: next_attempt_at is
// pushed to now+lease, and a Processing entry whose lease has expired (the
// claimant crashed before finishing) becomes claimable again.
func (s *Store) ClaimBatch(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.OutboxEntry, error) {
	var candidates []model.OutboxEntry
	err := s.db.WithContext(ctx).
		Where("status IN ? AND next_attempt_at <= ?",
			[]string{model.OutboxPending, model.OutboxProcessing}, now).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	claimed := make([]model.OutboxEntry, 0, len(candidates))
	for _, e := range candidates {
		res := s.db.WithContext(ctx).Model(&model.OutboxEntry{}).
			Where("id = ? AND status = ? AND next_attempt_at = ?", e.ID, e.Status, e.NextAttemptAt).
			Updates(map[string]interface{}{
				"status":          model.OutboxProcessing,
				"next_attempt_at": now.Add(lease),
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			// lost the claim race to another instance
			continue
		}
		if e.Status == model.OutboxProcessing {
			s.log.Warnf("reclaimed outbox entry %d whose lease expired", e.ID)
		}
		e.Status = model.OutboxProcessing
		e.NextAttemptAt = now.Add(lease)
		claimed = append(claimed, e)
	}
	return claimed, nil
}

// MarkProcessed finalizes an entry; processed entries are immutable and
// excluded from all future polling.
func (s *Store) MarkProcessed(ctx context.Context, id uint64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&model.OutboxEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.OutboxProcessed,
			"processed_at": &now,
		}).Error
}

// Requeue records a failed attempt and schedules the next one.
func (s *Store) Requeue(ctx context.Context, id uint64, retryCount int, lastErr string, nextAttempt time.Time) error {
	return s.db.WithContext(ctx).Model(&model.OutboxEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          model.OutboxPending,
			"retry_count":     retryCount,
			"last_error":      &lastErr,
			"next_attempt_at": nextAttempt,
		}).Error
}

// MarkDeadLettered parks an entry terminally after retries are exhausted.
func (s *Store) MarkDeadLettered(ctx context.Context, id uint64, retryCount int, lastErr string) error {
	return s.db.WithContext(ctx).Model(&model.OutboxEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.OutboxFailed,
			"retry_count": retryCount,
			"last_error":  &lastErr,
		}).Error
}

// FailedCount reports terminally failed entries for alerting.
func (s *Store) FailedCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.OutboxEntry{}).
		Where("status = ?", model.OutboxFailed).Count(&n).Error
	return n, err
}

// ListFailed returns dead-lettered entries, oldest first, for inspection.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	var entries []model.OutboxEntry
	err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxFailed).
		Order("created_at asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
