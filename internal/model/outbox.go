package model

import "time"

const (
	OutboxPending    = "Pending"
	OutboxProcessing = "Processing"
	OutboxProcessed  = "Processed"
	OutboxFailed     = "Failed"
)

// OutboxEntry is written in the same transaction as the business mutation it
// reports on. Once Status is Processed the row is never touched again.
type OutboxEntry struct {
	ID            uint64    `gorm:"primaryKey"`
	MessageType   string    `gorm:"size:128;not null"`
	Payload       string    `gorm:"type:jsonb;not null"`
	DedupKey      string    `gorm:"size:128;not null;uniqueIndex"`
	Status        string    `gorm:"size:16;not null;default:'Pending';index"`
	RetryCount    int       `gorm:"not null;default:0"`
	NextAttemptAt time.Time `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	ProcessedAt   *time.Time
	LastError     *string `gorm:"size:1024"`
}

func (OutboxEntry) TableName() string { return "event_outbox" }
