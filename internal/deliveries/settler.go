package deliveries

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/internal/ledger"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
)

const autoCancelReason = "all orders in the delivery were canceled"

// Settler closes deliveries whose orders have all reached an end state. It is
// installed as the order service's delivery hook.
type Settler struct {
	repo   Repository
	ledger ledger.Repository
	rec    recorder
	logg   *logger.Logger
}

var _ orders.DeliveryHook = (*Settler)(nil)

type SettlerParams struct {
	Repo   Repository
	Ledger ledger.Repository
	Users  *users.Repository
	Outbox outbox.Emitter
	Logger *logger.Logger
}

func NewSettler(params SettlerParams) (*Settler, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("deliveries repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("status ledger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Settler{
		repo:   params.Repo,
		ledger: params.Ledger,
		rec:    recorder{ledger: params.Ledger, users: params.Users, outbox: params.Outbox},
		logg:   logg,
	}, nil
}

// BeforeOrderTransition locks every delivery holding orderID in id order.
// Delivery paths lock the delivery and then its orders; order paths must
// take the same order or the two can deadlock.
func (s *Settler) BeforeOrderTransition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	links, err := repo.LinksByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery links")
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.DeliveryID)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	for _, id := range slices.Compact(ids) {
		if _, err := repo.LockByID(ctx, id); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock delivery")
		}
	}
	return nil
}

// AfterOrderTransition force-cancels an open delivery once every order in it
// is CANCELED, and finishes an accepted delivery once every order is terminal
// with at least one DELIVERED.
func (s *Settler) AfterOrderTransition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor) ([]notifications.Request, error) {
	repo := s.repo.WithTx(tx)
	led := s.ledger.WithTx(tx)

	links, err := repo.LinksByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery links")
	}

	var reqs []notifications.Request
	for _, link := range links {
		delivery, err := repo.LockByID(ctx, link.DeliveryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock delivery")
		}
		current, err := led.CurrentDeliveryStatus(ctx, delivery.ID)
		if err != nil {
			return nil, err
		}
		if current.IsTerminal() {
			continue
		}

		all, err := repo.Links(ctx, delivery.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery orders")
		}
		ids := make([]uuid.UUID, 0, len(all))
		for _, l := range all {
			ids = append(ids, l.OrderID)
		}
		statuses, err := led.CurrentOrderStatuses(ctx, ids)
		if err != nil {
			return nil, err
		}

		var canceled, delivered, terminal int
		for _, id := range ids {
			status := statuses[id]
			if status.IsTerminal() {
				terminal++
			}
			switch status {
			case enums.OrderStatusCanceled:
				canceled++
			case enums.OrderStatusDelivered:
				delivered++
			}
		}

		entry := ledger.DeliveryEntry{DeliveryID: delivery.ID}
		if actor.ID != uuid.Nil {
			id := actor.ID
			entry.ActorID = &id
		}
		switch {
		case len(ids) > 0 && canceled == len(ids):
			reason := autoCancelReason
			entry.Status = enums.DeliveryStatusCanceled
			entry.Reason = &reason
		case current == enums.DeliveryStatusAccepted && terminal == len(ids) && delivered > 0:
			entry.Status = enums.DeliveryStatusFinished
		default:
			continue
		}

		prev := current
		out, err := s.rec.write(ctx, tx, delivery, &prev, entry, actor)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, out...)
		s.logg.Info(s.logg.WithField(s.logg.WithDeliveryID(ctx, delivery.ID.String()), "status", entry.Status), "delivery.settled")
	}
	return reqs, nil
}
