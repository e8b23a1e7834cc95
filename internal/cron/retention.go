package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

const (
	defaultOutboxRetention       = 30 * 24 * time.Hour
	defaultNotificationRetention = 90 * 24 * time.Hour
)

// pruneFunc deletes rows older than cutoff and reports how many went.
type pruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// retentionJob deletes rows that aged past a fixed window.
type retentionJob struct {
	name      string
	prune     pruneFunc
	retention time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

func newRetentionJob(name string, prune pruneFunc, retention, fallback time.Duration, logg *logger.Logger) (*retentionJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("%s: logger is required", name)
	}
	if retention <= 0 {
		retention = fallback
	}
	return &retentionJob{name: name, prune: prune, retention: retention, logg: logg, now: time.Now}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"deleted": deleted,
	}), "cron.retention_pruned")
	return nil
}

// OutboxPruner deletes published outbox rows.
type OutboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes published events; unpublished rows are kept
// regardless of age.
func NewOutboxRetentionJob(repo OutboxPruner, retention time.Duration, logg *logger.Logger) (Job, error) {
	if repo == nil {
		return nil, errors.New("outbox-retention: repository is required")
	}
	job, err := newRetentionJob("outbox-retention", repo.DeletePublishedBefore, retention, defaultOutboxRetention, logg)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// NotificationPruner deletes read inbox rows.
type NotificationPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewNotificationRetentionJob prunes read notifications only.
func NewNotificationRetentionJob(repo NotificationPruner, retention time.Duration, logg *logger.Logger) (Job, error) {
	if repo == nil {
		return nil, errors.New("notification-retention: repository is required")
	}
	job, err := newRetentionJob("notification-retention", repo.DeleteReadBefore, retention, defaultNotificationRetention, logg)
	if err != nil {
		return nil, err
	}
	return job, nil
}
