package deliveries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/internal/authz"
	"github.com/angelmondragon/dormship-backend/internal/ledger"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/grouping"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Grouper is the external grouping and routing service.
type Grouper interface {
	GroupOrders(ctx context.Context, req grouping.GroupRequest) (*grouping.GroupResult, error)
	RouteOrders(ctx context.Context, stops []grouping.Stop) ([]grouping.Stop, error)
}

// Service is the delivery lifecycle manager.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*DeliveryView, error)
	Accept(ctx context.Context, input ActionInput) (*DeliveryView, error)
	Finish(ctx context.Context, input ActionInput) (*DeliveryView, error)
	Cancel(ctx context.Context, input CancelInput) (*DeliveryView, error)
	Update(ctx context.Context, input UpdateInput) (*DeliveryView, error)
	Delete(ctx context.Context, input ActionInput) error
	Get(ctx context.Context, actor orders.Actor, deliveryID uuid.UUID) (*DeliveryView, error)
	History(ctx context.Context, actor orders.Actor, deliveryID uuid.UUID) ([]models.DeliveryStatusHistory, error)
	Suggest(ctx context.Context, input SuggestInput) (*grouping.GroupResult, error)
	Route(ctx context.Context, input ActionInput) (*DeliveryView, error)
}

type ServiceParams struct {
	Repo      Repository
	Orders    orders.Service
	OrderRepo orders.Repository
	Ledger    ledger.Repository
	Users     *users.Repository
	Tx        txRunner
	Outbox    outbox.Emitter
	Notifier  notifications.Notifier
	Grouper   Grouper
	Metrics   *metrics.TransitionMetrics
	Logger    *logger.Logger
	DisplayID func(time.Time) string
	Now       func() time.Time
}

type service struct {
	repo      Repository
	orders    orders.Service
	orderRepo orders.Repository
	ledger    ledger.Repository
	users     *users.Repository
	tx        txRunner
	rec       recorder
	notifier  notifications.Notifier
	grouper   Grouper
	metrics   *metrics.TransitionMetrics
	logg      *logger.Logger
	displayID func(time.Time) string
	now       func() time.Time
}

// NewService builds the delivery lifecycle manager.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("deliveries repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.OrderRepo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("status ledger required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	}
	svc := &service{
		repo:      params.Repo,
		orders:    params.Orders,
		orderRepo: params.OrderRepo,
		ledger:    params.Ledger,
		users:     params.Users,
		tx:        params.Tx,
		rec:       recorder{ledger: params.Ledger, users: params.Users, outbox: params.Outbox},
		notifier:  params.Notifier,
		grouper:   params.Grouper,
		metrics:   params.Metrics,
		logg:      params.Logger,
		displayID: params.DisplayID,
		now:       params.Now,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.displayID == nil {
		svc.displayID = NewDisplayID
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*DeliveryView, error) {
	if err := authz.Check(authz.OpCreateDelivery, input.Actor.Role); err != nil {
		return nil, err
	}
	staffID := input.StaffID
	if staffID == uuid.Nil && input.Actor.Role == enums.UserRoleStaff {
		staffID = input.Actor.ID
	}
	if staffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staff id required")
	}
	ids, err := orderIDList(input.OrderIDs)
	if err != nil {
		return nil, err
	}

	var (
		view *DeliveryView
		reqs []notifications.Request
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		staff, err := s.users.WithTx(tx).FindByID(ctx, staffID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "staff member not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load staff member")
		}
		if staff.Role != enums.UserRoleStaff {
			return pkgerrors.New(pkgerrors.CodeValidation, "deliveries are assigned to staff members")
		}
		if err := s.checkAssignable(ctx, tx, ids, uuid.Nil); err != nil {
			return err
		}

		delivery := &models.Delivery{StaffID: staffID, TimeLimit: input.TimeLimit}
		if err := s.insert(ctx, tx, delivery); err != nil {
			return err
		}
		if err := s.assignShipper(ctx, tx, ids, &staffID); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).ReplaceLinks(ctx, delivery.ID, ids); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link orders")
		}
		reqs, err = s.rec.write(ctx, tx, delivery, nil, ledger.DeliveryEntry{
			DeliveryID: delivery.ID,
			Status:     enums.DeliveryStatusPending,
			ActorID:    actorID(input.Actor),
		}, input.Actor)
		if err != nil {
			return err
		}
		view, err = s.load(ctx, tx, delivery)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, view, reqs)
	return view, nil
}

// insert allocates a display id, retrying on collision. Each attempt runs in
// a savepoint so a failed insert does not poison the outer transaction.
func (s *service) insert(ctx context.Context, tx *gorm.DB, delivery *models.Delivery) error {
	for attempt := 1; attempt <= displayIDAttempts; attempt++ {
		delivery.DisplayID = s.displayID(s.now())
		err := tx.Transaction(func(sp *gorm.DB) error {
			return s.repo.WithTx(sp).Create(ctx, delivery)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, displayIDConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery")
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"display_id": delivery.DisplayID,
			"attempt":    attempt,
		}), "delivery.display_id_collision")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique display id")
}

func (s *service) Accept(ctx context.Context, input ActionInput) (*DeliveryView, error) {
	if err := authz.Check(authz.OpAcceptDelivery, input.Actor.Role); err != nil {
		return nil, err
	}

	var (
		view *DeliveryView
		reqs []notifications.Request
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.users.WithTx(tx).LockByID(ctx, input.Actor.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown staff member")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock staff member")
		}
		delivery, current, err := s.lockWithStatus(ctx, tx, input.DeliveryID, input.Actor)
		if err != nil {
			return err
		}
		if current != enums.DeliveryStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot accept delivery in %s", current))
		}
		if err := s.checkSingleActive(ctx, tx, delivery); err != nil {
			return err
		}

		prev := current
		out, err := s.rec.write(ctx, tx, delivery, &prev, ledger.DeliveryEntry{
			DeliveryID: delivery.ID,
			Status:     enums.DeliveryStatusAccepted,
			ActorID:    actorID(input.Actor),
		}, input.Actor)
		if err != nil {
			return err
		}
		reqs = append(reqs, out...)

		links, statuses, err := s.contents(ctx, tx, delivery.ID)
		if err != nil {
			return err
		}
		for _, link := range links {
			if statuses[link.OrderID] != enums.OrderStatusReceivedExternal {
				continue
			}
			out, err := s.orders.TransportInTx(ctx, tx, link.OrderID, input.Actor)
			if err != nil {
				return err
			}
			reqs = append(reqs, out...)
		}
		view, err = s.load(ctx, tx, delivery)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, view, reqs)
	return view, nil
}

// checkSingleActive rejects a second ACCEPTED delivery for the same staff
// member. The caller holds the staff row lock.
func (s *service) checkSingleActive(ctx context.Context, tx *gorm.DB, delivery *models.Delivery) error {
	owned, err := s.repo.WithTx(tx).ListByStaff(ctx, delivery.StaffID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list staff deliveries")
	}
	ids := make([]uuid.UUID, 0, len(owned))
	for _, d := range owned {
		if d.ID != delivery.ID {
			ids = append(ids, d.ID)
		}
	}
	statuses, err := s.ledger.WithTx(tx).CurrentDeliveryStatuses(ctx, ids)
	if err != nil {
		return err
	}
	for id, status := range statuses {
		if status == enums.DeliveryStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeConflict, "staff member already has an accepted delivery").
				WithDetails(map[string]any{"deliveryId": id})
		}
	}
	return nil
}

func (s *service) Finish(ctx context.Context, input ActionInput) (*DeliveryView, error) {
	if err := authz.Check(authz.OpFinishDelivery, input.Actor.Role); err != nil {
		return nil, err
	}

	var (
		view *DeliveryView
		reqs []notifications.Request
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		delivery, current, err := s.lockWithStatus(ctx, tx, input.DeliveryID, input.Actor)
		if err != nil {
			return err
		}
		if current != enums.DeliveryStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot finish delivery in %s", current))
		}
		_, statuses, err := s.contents(ctx, tx, delivery.ID)
		if err != nil {
			return err
		}
		for _, status := range statuses {
			if status == enums.OrderStatusInTransport {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "orders are still in transport")
			}
		}
		prev := current
		reqs, err = s.rec.write(ctx, tx, delivery, &prev, ledger.DeliveryEntry{
			DeliveryID: delivery.ID,
			Status:     enums.DeliveryStatusFinished,
			ActorID:    actorID(input.Actor),
		}, input.Actor)
		if err != nil {
			return err
		}
		view, err = s.load(ctx, tx, delivery)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, view, reqs)
	return view, nil
}

// Cancel writes the delivery's CANCELED row and then cancels every order
// still IN_TRANSPORT through the order service. Orders that never left
// RECEIVED_EXTERNAL are released for another delivery.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*DeliveryView, error) {
	if err := authz.Check(authz.OpCancelDelivery, input.Actor.Role); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	evidence := strings.TrimSpace(input.EvidenceURL)
	if reason == "" || evidence == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason and evidence image are required")
	}
	reasonType := input.ReasonType
	if reasonType == "" {
		reasonType = enums.CancelReasonDeliveryCanceled
	}
	if !reasonType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid reason type")
	}

	var (
		view *DeliveryView
		reqs []notifications.Request
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		delivery, current, err := s.lockWithStatus(ctx, tx, input.DeliveryID, input.Actor)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot cancel delivery in %s", current))
		}

		prev := current
		out, err := s.rec.write(ctx, tx, delivery, &prev, ledger.DeliveryEntry{
			DeliveryID:  delivery.ID,
			Status:      enums.DeliveryStatusCanceled,
			Reason:      &reason,
			EvidenceURL: &evidence,
			ActorID:     actorID(input.Actor),
		}, input.Actor)
		if err != nil {
			return err
		}
		reqs = append(reqs, out...)

		links, statuses, err := s.contents(ctx, tx, delivery.ID)
		if err != nil {
			return err
		}
		var released []uuid.UUID
		for _, link := range links {
			switch statuses[link.OrderID] {
			case enums.OrderStatusInTransport:
				out, err := s.orders.CancelInTx(ctx, tx, orders.CancelInput{
					OrderID:     link.OrderID,
					Actor:       input.Actor,
					ReasonType:  reasonType,
					Reason:      reason,
					EvidenceURL: evidence,
				})
				if err != nil {
					return err
				}
				reqs = append(reqs, out...)
			case enums.OrderStatusReceivedExternal:
				released = append(released, link.OrderID)
			}
		}
		if err := s.assignShipper(ctx, tx, released, nil); err != nil {
			return err
		}
		view, err = s.load(ctx, tx, delivery)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, view, reqs)
	return view, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*DeliveryView, error) {
	if err := authz.Check(authz.OpUpdateDelivery, input.Actor.Role); err != nil {
		return nil, err
	}
	if input.OrderIDs == nil && input.TimeLimit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	var ids []uuid.UUID
	if input.OrderIDs != nil {
		var err error
		if ids, err = orderIDList(*input.OrderIDs); err != nil {
			return nil, err
		}
	}

	var view *DeliveryView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		delivery, current, err := s.lockWithStatus(ctx, tx, input.DeliveryID, input.Actor)
		if err != nil {
			return err
		}
		if current != enums.DeliveryStatusPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "only pending deliveries can be updated")
		}

		repo := s.repo.WithTx(tx)
		if input.OrderIDs != nil {
			if err := s.checkAssignable(ctx, tx, ids, delivery.ID); err != nil {
				return err
			}
			existing, err := repo.Links(ctx, delivery.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery orders")
			}
			keep := make(map[uuid.UUID]struct{}, len(ids))
			for _, id := range ids {
				keep[id] = struct{}{}
			}
			var removed []uuid.UUID
			for _, link := range existing {
				if _, ok := keep[link.OrderID]; !ok {
					removed = append(removed, link.OrderID)
				}
			}
			if err := s.assignShipper(ctx, tx, removed, nil); err != nil {
				return err
			}
			staffID := delivery.StaffID
			if err := s.assignShipper(ctx, tx, ids, &staffID); err != nil {
				return err
			}
			if err := repo.ReplaceLinks(ctx, delivery.ID, ids); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link orders")
			}
		}
		if input.TimeLimit != nil {
			if err := repo.Update(ctx, delivery.ID, map[string]any{"time_limit": *input.TimeLimit}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery")
			}
			limit := *input.TimeLimit
			delivery.TimeLimit = &limit
		}
		view, err = s.load(ctx, tx, delivery)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithDeliveryID(ctx, view.ID.String()), "delivery.updated")
	return view, nil
}

// Delete removes a delivery that never left PENDING along with its history.
func (s *service) Delete(ctx context.Context, input ActionInput) error {
	if err := authz.Check(authz.OpDeleteDelivery, input.Actor.Role); err != nil {
		return err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		delivery, current, err := s.lockWithStatus(ctx, tx, input.DeliveryID, input.Actor)
		if err != nil {
			return err
		}
		if current != enums.DeliveryStatusPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "only pending deliveries can be deleted")
		}
		repo := s.repo.WithTx(tx)
		links, err := repo.Links(ctx, delivery.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery orders")
		}
		ids := make([]uuid.UUID, 0, len(links))
		for _, link := range links {
			ids = append(ids, link.OrderID)
		}
		if err := s.assignShipper(ctx, tx, ids, nil); err != nil {
			return err
		}
		if err := repo.DeleteLinks(ctx, delivery.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlink orders")
		}
		if err := s.ledger.WithTx(tx).DeleteDeliveryHistory(ctx, delivery.ID); err != nil {
			return err
		}
		if err := repo.Delete(ctx, delivery.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete delivery")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithDeliveryID(ctx, input.DeliveryID.String()), "delivery.deleted")
	return nil
}

func (s *service) Get(ctx context.Context, actor orders.Actor, deliveryID uuid.UUID) (*DeliveryView, error) {
	if err := authz.Check(authz.OpViewDelivery, actor.Role); err != nil {
		return nil, err
	}
	delivery, err := s.find(ctx, actor, deliveryID)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, nil, delivery)
}

func (s *service) History(ctx context.Context, actor orders.Actor, deliveryID uuid.UUID) ([]models.DeliveryStatusHistory, error) {
	if err := authz.Check(authz.OpViewDelivery, actor.Role); err != nil {
		return nil, err
	}
	if _, err := s.find(ctx, actor, deliveryID); err != nil {
		return nil, err
	}
	return s.ledger.DeliveryHistory(ctx, deliveryID)
}

// Suggest passes the externally received, unassigned orders of a dormitory
// and slot to the grouping service and returns its answer as is.
func (s *service) Suggest(ctx context.Context, input SuggestInput) (*grouping.GroupResult, error) {
	if err := authz.Check(authz.OpSuggestDeliveries, input.Actor.Role); err != nil {
		return nil, err
	}
	if s.grouper == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "grouping service not configured")
	}
	dormitory := strings.TrimSpace(input.Dormitory)
	slot := strings.TrimSpace(input.TimeSlot)
	if dormitory == "" || slot == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dormitory and time slot are required")
	}

	candidates, err := s.repo.CandidateOrders(ctx, dormitory, slot)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load candidate orders")
	}
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, o := range candidates {
		ids = append(ids, o.ID)
	}
	statuses, err := s.ledger.CurrentOrderStatuses(ctx, ids)
	if err != nil {
		return nil, err
	}
	active, err := s.orders.ActiveDeliveries(ctx, nil, ids)
	if err != nil {
		return nil, err
	}

	req := grouping.GroupRequest{
		MaxWeight: input.MaxWeight,
		Dormitory: dormitory,
		TimeSlot:  slot,
		Mode:      input.Mode,
		Orders:    []grouping.Order{},
	}
	for _, o := range candidates {
		if statuses[o.ID] != enums.OrderStatusReceivedExternal {
			continue
		}
		if _, attached := active[o.ID]; attached {
			continue
		}
		if input.DeliveryDate != nil && (o.DeliveryDate == nil || !sameDay(*o.DeliveryDate, *input.DeliveryDate)) {
			continue
		}
		req.Orders = append(req.Orders, grouping.Order{
			ID:        o.ID,
			Weight:    o.Weight,
			Dormitory: deref(o.Dormitory),
			Building:  deref(o.Building),
			Room:      deref(o.Room),
			TimeSlot:  deref(o.TimeSlot),
		})
	}
	return s.grouper.GroupOrders(ctx, req)
}

// Route asks the routing service for a visiting order and re-sequences the
// delivery to match. Orders the service leaves out keep their relative order
// at the end.
func (s *service) Route(ctx context.Context, input ActionInput) (*DeliveryView, error) {
	if err := authz.Check(authz.OpRouteDelivery, input.Actor.Role); err != nil {
		return nil, err
	}
	if s.grouper == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "grouping service not configured")
	}
	delivery, err := s.find(ctx, input.Actor, input.DeliveryID)
	if err != nil {
		return nil, err
	}
	links, err := s.repo.Links(ctx, delivery.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery orders")
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.OrderID)
	}
	rows, err := s.orderRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
	}
	byID := make(map[uuid.UUID]models.Order, len(rows))
	for _, o := range rows {
		byID[o.ID] = o
	}
	stops := make([]grouping.Stop, 0, len(ids))
	for _, id := range ids {
		o := byID[id]
		stops = append(stops, grouping.Stop{
			ID:        id,
			Room:      deref(o.Room),
			Building:  deref(o.Building),
			Dormitory: deref(o.Dormitory),
		})
	}
	routed, err := s.grouper.RouteOrders(ctx, stops)
	if err != nil {
		return nil, err
	}
	sequence, err := routeSequence(ids, routed)
	if err != nil {
		return nil, err
	}

	var view *DeliveryView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, current, err := s.lockWithStatus(ctx, tx, delivery.ID, input.Actor)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot route delivery in %s", current))
		}
		repo := s.repo.WithTx(tx)
		for i, id := range sequence {
			if err := repo.UpdateSequence(ctx, locked.ID, id, i+1); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order sequence")
			}
		}
		view, err = s.load(ctx, tx, locked)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// checkAssignable enforces that every order exists, is RECEIVED_EXTERNAL and
// is not held by another delivery that is still open.
func (s *service) checkAssignable(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, self uuid.UUID) error {
	found, err := s.orderRepo.WithTx(tx).LockByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock orders")
	}
	present := make(map[uuid.UUID]struct{}, len(found))
	for _, o := range found {
		present[o.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", id))
		}
	}

	statuses, err := s.ledger.WithTx(tx).CurrentOrderStatuses(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if statuses[id] != enums.OrderStatusReceivedExternal {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order %s is %s, not RECEIVED_EXTERNAL", id, statuses[id]))
		}
	}

	active, err := s.orders.ActiveDeliveries(ctx, tx, ids)
	if err != nil {
		return err
	}
	for orderID, deliveryID := range active {
		if deliveryID != self {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("order %s is already attached to a delivery", orderID))
		}
	}
	return nil
}

func (s *service) assignShipper(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, staffID *uuid.UUID) error {
	repo := s.orderRepo.WithTx(tx)
	for _, id := range ids {
		if err := repo.Update(ctx, id, map[string]any{"shipper_id": staffID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign shipper")
		}
	}
	return nil
}

func (s *service) lockWithStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, actor orders.Actor) (*models.Delivery, enums.DeliveryStatus, error) {
	delivery, err := s.repo.WithTx(tx).LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock delivery")
	}
	if err := checkStaff(actor, delivery); err != nil {
		return nil, "", err
	}
	current, err := s.ledger.WithTx(tx).CurrentDeliveryStatus(ctx, delivery.ID)
	if err != nil {
		return nil, "", err
	}
	return delivery, current, nil
}

func (s *service) find(ctx context.Context, actor orders.Actor, id uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
	}
	if err := checkStaff(actor, delivery); err != nil {
		return nil, err
	}
	return delivery, nil
}

func (s *service) contents(ctx context.Context, tx *gorm.DB, deliveryID uuid.UUID) ([]models.DeliveryOrder, map[uuid.UUID]enums.OrderStatus, error) {
	repo := s.repo
	led := s.ledger
	if tx != nil {
		repo = repo.WithTx(tx)
		led = led.WithTx(tx)
	}
	links, err := repo.Links(ctx, deliveryID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery orders")
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.OrderID)
	}
	statuses, err := led.CurrentOrderStatuses(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return links, statuses, nil
}

func (s *service) load(ctx context.Context, tx *gorm.DB, delivery *models.Delivery) (*DeliveryView, error) {
	led := s.ledger
	if tx != nil {
		led = led.WithTx(tx)
	}
	status, err := led.CurrentDeliveryStatus(ctx, delivery.ID)
	if err != nil {
		return nil, err
	}
	links, statuses, err := s.contents(ctx, tx, delivery.ID)
	if err != nil {
		return nil, err
	}
	view := newDeliveryView(*delivery, status, links, statuses)
	return &view, nil
}

func (s *service) afterTransition(ctx context.Context, view *DeliveryView, reqs []notifications.Request) {
	s.metrics.Inc("delivery", string(view.Status))
	s.logg.Info(s.logg.WithField(s.logg.WithDeliveryID(ctx, view.ID.String()), "status", view.Status), "delivery.transition")
	notifications.NotifyAll(ctx, s.notifier, reqs)
}

// checkStaff restricts staff members to their own deliveries.
func checkStaff(actor orders.Actor, delivery *models.Delivery) error {
	if actor.Role == enums.UserRoleStaff && delivery.StaffID != actor.ID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "delivery belongs to another staff member")
	}
	return nil
}

func orderIDList(ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
		}
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order %s listed twice", id))
		}
		seen[id] = struct{}{}
	}
	return ids, nil
}

func routeSequence(current []uuid.UUID, routed []grouping.Stop) ([]uuid.UUID, error) {
	known := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		known[id] = false
	}
	out := make([]uuid.UUID, 0, len(current))
	for _, stop := range routed {
		placed, ok := known[stop.ID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "routing returned an order outside the delivery")
		}
		if placed {
			continue
		}
		known[stop.ID] = true
		out = append(out, stop.ID)
	}
	for _, id := range current {
		if !known[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func actorID(actor orders.Actor) *uuid.UUID {
	if actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}
