package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/User159951/IntelliPM-sub015/internal/event"
	"github.com/User159951/IntelliPM-sub015/internal/metrics"
	"github.com/User159951/IntelliPM-sub015/internal/model"
)

// Consumer receives typed events on the outbox path. Unlike the synchronous
// dispatcher, consumer errors matter here: they drive retry and dead-letter.
type Consumer interface {
	Name() string
	Consume(ctx context.Context, evt event.Event) error
}

// Config tunes the processor. Zero values fall back to the defaults below.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	ClaimLease   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Minute
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 5 * time.Minute
	}
	return c
}

// Processor is the durability backstop: it claims pending entries on a timer
// and delivers them to consumers with exponential backoff and dead-lettering.
type Processor struct {
	store     *Store
	consumers []Consumer
	cfg       Config
	now       event.Clock
	log       *zap.SugaredLogger
}

func NewProcessor(store *Store, consumers []Consumer, cfg Config, now event.Clock, logger *zap.SugaredLogger) *Processor {
	return &Processor{
		store:     store,
		consumers: consumers,
		cfg:       cfg.withDefaults(),
		now:       now,
		log:       logger,
	}
}

// Run polls until the context is canceled.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.log.Infof("outbox processor started interval=%s batch=%d max_retries=%d",
		p.cfg.PollInterval, p.cfg.BatchSize, p.cfg.MaxRetries)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("outbox processor stopped")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single claim-and-process cycle. A failure on one entry
// never aborts the rest of the batch.
func (p *Processor) RunOnce(ctx context.Context) int {
	entries, err := p.store.ClaimBatch(ctx, p.cfg.BatchSize, p.now(), p.cfg.ClaimLease)
	if err != nil {
		p.log.Errorf("claim outbox batch: %v", err)
		return 0
	}
	processed := 0
	for _, e := range entries {
		if p.process(ctx, e) {
			processed++
		}
	}
	return processed
}

func (p *Processor) process(ctx context.Context, e model.OutboxEntry) bool {
	evt, err := event.Decode(e.MessageType, e.Payload)
	if err != nil {
		p.fail(ctx, e, err)
		return false
	}
	for _, c := range p.consumers {
		if err := c.Consume(ctx, evt); err != nil {
			p.fail(ctx, e, err)
			return false
		}
	}
	if err := p.store.MarkProcessed(ctx, e.ID, p.now()); err != nil {
		p.log.Errorf("mark processed id=%d: %v", e.ID, err)
		return false
	}
	metrics.OutboxProcessed.Inc()
	p.log.Infof("entry %d processed type=%s retries=%d", e.ID, e.MessageType, e.RetryCount)
	return true
}

func (p *Processor) fail(ctx context.Context, e model.OutboxEntry, cause error) {
	retry := e.RetryCount + 1
	if retry >= p.cfg.MaxRetries {
		if err := p.store.MarkDeadLettered(ctx, e.ID, retry, cause.Error()); err != nil {
			p.log.Errorf("dead-letter id=%d: %v", e.ID, err)
			return
		}
		metrics.OutboxDeadLettered.Inc()
		p.log.Errorf("entry %d dead-lettered after %d attempts type=%s: %v", e.ID, retry, e.MessageType, cause)
		return
	}
	next := p.now().Add(p.backoff(retry))
	if err := p.store.Requeue(ctx, e.ID, retry, cause.Error(), next); err != nil {
		p.log.Errorf("requeue id=%d: %v", e.ID, err)
		return
	}
	metrics.OutboxRetried.Inc()
	p.log.Warnf("entry %d delivery failed (attempt %d), retrying at %s: %v", e.ID, retry, next.Format(time.RFC3339), cause)
}

// backoff doubles per attempt from the base, capped.
func (p *Processor) backoff(retry int) time.Duration {
	d := p.cfg.BackoffBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= p.cfg.BackoffCap {
			return p.cfg.BackoffCap
		}
	}
	if d > p.cfg.BackoffCap {
		return p.cfg.BackoffCap
	}
	return d
}
