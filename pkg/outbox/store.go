package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
)

// OutcomeKind is how a publish attempt ended. The values double as metric
// labels.
type OutcomeKind string

const (
	Published OutcomeKind = "published"
	Retry     OutcomeKind = "retry"
	Parked    OutcomeKind = "terminal"
)

// Outcome is recorded against a claimed row. Parked rows have their attempt
// count raised to Ceiling so ClaimBatch never returns them again.
type Outcome struct {
	Kind    OutcomeKind
	Err     error
	Ceiling int
}

// Store is the publisher's view of outbox_events.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

var errNoTx = errors.New("outbox: transaction required")

// ClaimBatch locks up to limit pending rows in creation order. Rows held by
// another publisher are skipped rather than waited on.
func (s *Store) ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	var rows []models.OutboxEvent
	err := pending(tx, maxAttempts).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Order("created_at, id").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Settle records the outcome of one publish attempt.
func (s *Store) Settle(tx *gorm.DB, id uuid.UUID, out Outcome) error {
	if tx == nil {
		return errNoTx
	}
	var updates map[string]any
	switch out.Kind {
	case Published:
		updates = map[string]any{"published_at": s.now().UTC(), "last_error": nil}
	case Retry:
		updates = map[string]any{"attempt_count": gorm.Expr("attempt_count + 1"), "last_error": errText(out.Err)}
	case Parked:
		updates = map[string]any{"attempt_count": out.Ceiling, "last_error": errText(out.Err)}
	default:
		return fmt.Errorf("outbox: unknown outcome %q", out.Kind)
	}
	res := tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("outbox: event %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// Backlog counts rows still waiting to be published.
func (s *Store) Backlog(ctx context.Context, maxAttempts int) (int64, error) {
	var n int64
	err := pending(s.db.WithContext(ctx), maxAttempts).Model(&models.OutboxEvent{}).Count(&n).Error
	return n, err
}

// DeletePublishedBefore removes published rows older than cutoff.
func (s *Store) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func pending(db *gorm.DB, maxAttempts int) *gorm.DB {
	return db.Where("published_at IS NULL AND attempt_count < ?", maxAttempts)
}

func errText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
