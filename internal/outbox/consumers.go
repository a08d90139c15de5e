package outbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/User159951/IntelliPM-sub015/internal/dispatch"
	"github.com/User159951/IntelliPM-sub015/internal/event"
)

// RegistryConsumer re-delivers outbox events to the same projection registry
// the synchronous dispatcher uses. Handlers are full-recompute idempotent, so
// a second delivery of an already-handled event converges to the same state.
type RegistryConsumer struct {
	reg *dispatch.Registry
}

func NewRegistryConsumer(reg *dispatch.Registry) *RegistryConsumer {
	return &RegistryConsumer{reg: reg}
}

func (c *RegistryConsumer) Name() string { return "projections" }

func (c *RegistryConsumer) Consume(ctx context.Context, evt event.Event) error {
	return c.reg.Deliver(ctx, evt)
}

// KafkaNotifier forwards events to the broker for slow, out-of-process
// consumers (email, notifications, analytics) that must never run on the
// request thread.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(writer *kafka.Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Name() string { return "kafka-notifier" }

func (n *KafkaNotifier) Consume(ctx context.Context, evt event.Event) error {
	payload, err := event.Encode(evt)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(evt.AggregateType() + ":" + strconv.FormatUint(evt.AggregateID(), 10)),
		Value: []byte(payload),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.EventType())},
			{Key: "event-id", Value: []byte(evt.EventID())},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s id=%s: %w", evt.EventType(), evt.EventID(), err)
	}
	return nil
}
