package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/eventbus"
)

// ProcessorConfig controls polling, retries and the broker circuit breaker.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration

	// BreakerThreshold consecutive publish failures open the broker breaker;
	// while open, messages stay pending without spending retries.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// DefaultProcessorConfig returns the settings used by the worker.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     500 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// maxBackoffShift keeps base<<shift from overflowing time.Duration.
const maxBackoffShift = 20

// Processor relays staged billing events from the outbox table to the broker.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]
	config    ProcessorConfig
	logger    *slog.Logger
	now       func() time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// Stats reports relay progress for health endpoints.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	DeferredCount   uint64
	BrokerState     string
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// NewProcessor creates a relay over repo and publisher.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BreakerThreshold == 0 {
		config.BreakerThreshold = DefaultProcessorConfig().BreakerThreshold
	}

	p := &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "outbox-broker",
		Timeout: config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("broker circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return p
}

// Start launches the polling loop. Calling Start on a running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch.
func (p *Processor) Stop() {
	p.lifecycle.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether the loop is active.
func (p *Processor) IsRunning() bool {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.cancel != nil
}

func (p *Processor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch synchronously. An open breaker ends the
// batch early and leaves the rest pending.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	messages, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.record(func(s *Stats) {}, err)
		return err
	}
	p.observeBacklog(messages)

	for i, msg := range messages {
		_, err := p.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, p.publisher.Publish(ctx, msg.BusMessage())
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			deferred := uint64(len(messages) - i)
			p.record(func(s *Stats) { s.DeferredCount += deferred }, nil)
			p.logger.Debug("broker unavailable, deferring batch", "deferred", deferred)
			return nil
		}
		if err != nil {
			p.fail(ctx, msg, err)
			continue
		}

		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			// The broker already has it; a republish on the next poll is tolerated downstream.
			p.logger.Error("failed to mark message published", "id", msg.ID, "event_id", msg.EventID, "error", err)
			continue
		}
		p.record(func(s *Stats) { s.PublishedCount++ }, nil)
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, msg *Message, err error) {
	meta := msg.EventMetadata()
	attempt := msg.RetryCount + 1
	p.logger.Warn("failed to publish billing event",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"user_id", meta.UserID,
		"source_event_id", meta.CausationID,
		"attempt", attempt,
		"error", err,
	)

	if msg.Exhausted(p.config.MaxRetries) {
		p.record(func(s *Stats) { s.DeadCount++ }, err)
		if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
			p.logger.Error("failed to dead-letter message", "id", msg.ID, "error", markErr)
		}
		return
	}

	p.record(func(s *Stats) { s.FailedCount++ }, err)
	if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), p.now().Add(p.retryBackoff(attempt))); markErr != nil {
		p.logger.Error("failed to schedule message retry", "id", msg.ID, "error", markErr)
	}
}

// retryBackoff doubles from RetryBackoffBase per attempt, capped at RetryBackoffMax.
func (p *Processor) retryBackoff(attempt int) time.Duration {
	base, limit := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if limit <= 0 {
		limit = time.Minute
	}

	shift := max(attempt-1, 0)
	if shift > maxBackoffShift {
		return limit
	}
	return min(base<<shift, limit)
}

// GetStats returns a snapshot of relay statistics.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()

	p.statsMu.Lock()
	stats := p.stats
	p.statsMu.Unlock()

	stats.IsRunning = running
	stats.BrokerState = p.breaker.State().String()
	return stats
}

// record applies update and, when err is set, remembers it as the last error.
func (p *Processor) record(update func(*Stats), err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	update(&p.stats)
	if err != nil {
		now := p.now()
		p.stats.LastError = err.Error()
		p.stats.LastErrorAt = &now
	}
}

func (p *Processor) observeBacklog(messages []*Message) {
	now := p.now()
	var oldest *time.Time
	for _, msg := range messages {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}

	p.record(func(s *Stats) {
		s.LastProcessedAt = &now
		s.OldestMessageAt = oldest
		s.LagSeconds = 0
		if oldest != nil {
			s.LagSeconds = now.Sub(*oldest).Seconds()
		}
	}, nil)
}
