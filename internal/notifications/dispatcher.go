package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultQueueSize   = 1024
	defaultWorkers     = 4
)

// DispatcherParams wires the async dispatcher.
type DispatcherParams struct {
	Sender      Sender
	Logger      *logger.Logger
	Metrics     *metrics.NotificationMetrics
	MaxAttempts int
	BaseDelay   time.Duration
	QueueSize   int
	Workers     int
}

type job struct {
	ctx context.Context
	req Request
}

// Dispatcher queues notifications and delivers them on background workers
// with bounded exponential backoff. Notify never blocks and never fails.
type Dispatcher struct {
	sender      Sender
	logg        *logger.Logger
	metrics     *metrics.NotificationMetrics
	maxAttempts int
	baseDelay   time.Duration
	workers     int

	mu      sync.RWMutex
	closed  bool
	started bool
	queue   chan job
	wg      sync.WaitGroup
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Sender == nil {
		return nil, errors.New("notification sender required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := params.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	queueSize := params.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Dispatcher{
		sender:      params.Sender,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		workers:     workers,
		queue:       make(chan job, queueSize),
	}, nil
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Notify enqueues req. When the queue is full or the dispatcher is closed the
// request is dropped with a warning.
func (d *Dispatcher) Notify(ctx context.Context, req Request) {
	if ctx == nil {
		ctx = context.Background()
	}
	// Keep log fields, drop the caller's deadline.
	detached := context.WithoutCancel(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(detached, req, "dispatcher closed")
		return
	}
	select {
	case d.queue <- job{ctx: detached, req: req}:
	default:
		d.drop(detached, req, "queue full")
	}
}

// Close stops accepting requests and waits for queued ones to finish, or for
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j.ctx, j.req)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req Request) {
	backoff := retry.WithMaxRetries(uint64(d.maxAttempts-1), retry.NewExponential(d.baseDelay))
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		d.metrics.IncAttempt()
		if err := d.sender.Send(ctx, req); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"recipient_id": req.UserID.String(),
		"attempts":     attempts,
	})
	if err != nil {
		d.metrics.IncOutcome(metrics.OutcomeFailed)
		d.logg.Error(logCtx, "notification.dispatch_failed", err)
		return
	}
	d.metrics.IncOutcome(metrics.OutcomeDelivered)
}

func (d *Dispatcher) drop(ctx context.Context, req Request, reason string) {
	d.metrics.IncOutcome(metrics.OutcomeDropped)
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"recipient_id": req.UserID.String(),
		"reason":       reason,
	})
	d.logg.Warn(logCtx, "notification.dropped")
}
