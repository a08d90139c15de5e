package event

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current UTC time. Injected so tests control burndown
// and velocity calculations.
type Clock func() time.Time

// Event is an immutable fact that already happened on the write side.
type Event interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
	AggregateType() string
	AggregateID() uint64
}

// Base carries the identity fields shared by every event.
type Base struct {
	ID string    `json:"event_id"`
	At time.Time `json:"occurred_at"`
}

func NewBase(now time.Time) Base {
	return Base{ID: uuid.NewString(), At: now.UTC()}
}

func (b Base) EventID() string       { return b.ID }
func (b Base) OccurredAt() time.Time { return b.At }
