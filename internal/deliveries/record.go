package deliveries

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/internal/ledger"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
)

// recorder writes a delivery ledger row together with its outbox event and
// returns the notification owed to the delivery's staff member.
type recorder struct {
	ledger ledger.Repository
	users  *users.Repository
	outbox outbox.Emitter
}

func (r recorder) write(ctx context.Context, tx *gorm.DB, d *models.Delivery, previous *enums.DeliveryStatus, entry ledger.DeliveryEntry, actor orders.Actor) ([]notifications.Request, error) {
	if _, err := r.ledger.WithTx(tx).AppendDelivery(ctx, entry); err != nil {
		return nil, err
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventDeliveryStatusChanged,
		AggregateType: enums.AggregateDelivery,
		AggregateID:   d.ID,
		Data: StatusChangedEvent{
			DeliveryID: d.ID,
			DisplayID:  d.DisplayID,
			StaffID:    d.StaffID,
			Status:     entry.Status,
			Previous:   previous,
		},
	}
	if actor.ID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actor.ID, Role: string(actor.Role)}
	}
	if err := r.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit delivery event")
	}

	locales, err := r.users.WithTx(tx).Locales(ctx, []uuid.UUID{d.StaffID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load staff locale")
	}
	return []notifications.Request{
		notifications.DeliveryStatusRequest(d.StaffID, d.ID, locales[d.StaffID], d.DisplayID, entry.Status),
	}, nil
}
