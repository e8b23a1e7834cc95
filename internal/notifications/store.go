package notifications

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Store is the Sender used in production: it writes the inbox row and queues
// a push event for the outbox publisher in one transaction.
type Store struct {
	tx     txRunner
	repo   Repository
	outbox outbox.Emitter
}

func NewStore(tx txRunner, repo Repository, emitter outbox.Emitter) (*Store, error) {
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Store{tx: tx, repo: repo, outbox: emitter}, nil
}

func (s *Store) Send(ctx context.Context, req Request) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row := &models.Notification{
			UserID:     req.UserID,
			Title:      req.Title,
			Message:    req.Message,
			OrderID:    req.OrderID,
			DeliveryID: req.DeliveryID,
			ReportID:   req.ReportID,
		}
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationCreated,
			AggregateType: enums.AggregateNotification,
			AggregateID:   row.ID,
			Data:          pushPayload{NotificationID: row.ID.String(), Request: req},
		})
	})
}

type pushPayload struct {
	NotificationID string `json:"notificationId"`
	Request
}
