package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
)

const publishTimeout = 15 * time.Second

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	Settle(tx *gorm.DB, id uuid.UUID, out outbox.Outcome) error
	Backlog(ctx context.Context, maxAttempts int) (int64, error)
}

type sender interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

// permanentError marks a publish failure that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

type RelayParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Store   eventStore
	Sender  sender
	Router  outbox.Router
	Outbox  config.OutboxConfig
	Metrics *metrics.OutboxMetrics
}

// Relay moves committed outbox rows to Pub/Sub. Several relays may run at
// once; row locks keep them from publishing the same event twice in one
// pass, though delivery remains at-least-once.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       eventStore
	sender      sender
	router      outbox.Router
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	maxBackoff  time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Sender == nil:
		return nil, errors.New("sender is required")
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		store:       p.Store,
		sender:      p.Sender,
		router:      p.Router,
		metrics:     p.Metrics,
		batchSize:   orDefault(p.Outbox.BatchSize, 50),
		maxAttempts: orDefault(p.Outbox.MaxAttempts, 10),
		poll:        orDefault(p.Outbox.PollInterval, 500*time.Millisecond),
		maxBackoff:  orDefault(p.Outbox.MaxBackoff, 10*time.Second),
	}
	if r.maxBackoff < r.poll {
		r.maxBackoff = r.poll
	}
	return r, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Run publishes until ctx is cancelled. A full batch is followed straight
// away by the next one; storage errors back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.sender.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	backoff := r.newBackoff()
	for ctx.Err() == nil {
		n, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.batch_failed", err)
			wait, _ = backoff.Next()
		case n >= r.batchSize:
			backoff = r.newBackoff()
			continue
		default:
			backoff = r.newBackoff()
			r.sampleBacklog(ctx)
			wait = r.poll
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (r *Relay) newBackoff() retry.Backoff {
	jitter := max(r.poll/4, time.Millisecond)
	return retry.WithCappedDuration(r.maxBackoff, retry.WithJitter(jitter, retry.NewExponential(r.poll)))
}

type attempt struct {
	event models.OutboxEvent
	topic string
	out   outbox.Outcome
}

// drain claims one batch, publishes it and settles every row in the same
// transaction. Logs and metrics are emitted only after the commit.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var done []attempt
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		done = done[:0]
		batch, err := r.store.ClaimBatch(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		for _, ev := range batch {
			a := r.deliver(ctx, ev)
			if err := r.store.Settle(tx, ev.ID, a.out); err != nil {
				return fmt.Errorf("settle %s: %w", ev.ID, err)
			}
			done = append(done, a)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, a := range done {
		r.report(ctx, a)
	}
	return len(done), nil
}

func (r *Relay) deliver(ctx context.Context, ev models.OutboxEvent) attempt {
	a := attempt{event: ev, topic: r.router.Topic(ev.EventType)}
	err := r.send(ctx, ev, a.topic)
	var perm permanentError
	switch {
	case err == nil:
		a.out = outbox.Outcome{Kind: outbox.Published}
	case errors.As(err, &perm):
		a.out = outbox.Outcome{Kind: outbox.Parked, Err: err, Ceiling: r.maxAttempts}
	case ev.AttemptCount+1 >= r.maxAttempts:
		a.out = outbox.Outcome{Kind: outbox.Parked, Err: fmt.Errorf("gave up after %d attempts: %w", r.maxAttempts, err), Ceiling: r.maxAttempts}
	default:
		a.out = outbox.Outcome{Kind: outbox.Retry, Err: err}
	}
	return a
}

func (r *Relay) send(ctx context.Context, ev models.OutboxEvent, topic string) error {
	env, err := outbox.Decode(ev.Payload)
	if err != nil {
		return permanentError{err}
	}
	if topic == "" {
		return permanentError{fmt.Errorf("no topic routes %s", ev.EventType)}
	}
	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err = r.sender.Publish(sendCtx, topic, &gcppubsub.Message{
		Data: ev.Payload,
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(ev.EventType),
			"aggregate_type": string(ev.AggregateType),
			"aggregate_id":   ev.AggregateID.String(),
			"occurred_at":    env.OccurredAt.Format(time.RFC3339Nano),
		},
	})
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition, codes.Unauthenticated:
		return permanentError{err}
	}
	return err
}

func (r *Relay) report(ctx context.Context, a attempt) {
	r.metrics.Record(string(a.event.EventType), string(a.out.Kind))
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     a.event.ID.String(),
		"event_type":    a.event.EventType,
		"aggregate_id":  a.event.AggregateID.String(),
		"topic":         a.topic,
		"attempt_count": a.event.AttemptCount + 1,
	})
	switch a.out.Kind {
	case outbox.Published:
		r.logg.Debug(logCtx, "outbox.published")
	case outbox.Retry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", a.out.Err.Error()), "outbox.publish_retry")
	default:
		r.logg.Error(logCtx, "outbox.parked", a.out.Err)
	}
}

func (r *Relay) sampleBacklog(ctx context.Context) {
	n, err := r.store.Backlog(ctx, r.maxAttempts)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox.backlog_unavailable")
		return
	}
	r.metrics.SetBacklog(n)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
