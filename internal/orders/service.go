package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/internal/authz"
	"github.com/angelmondragon/dormship-backend/internal/bans"
	"github.com/angelmondragon/dormship-backend/internal/ledger"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
	"github.com/angelmondragon/dormship-backend/pkg/pagination"
)

const checkCodeBrandConstraint = "ux_orders_check_code_brand"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DeliveryHook runs inside the transaction of every standalone order
// transition so the delivery holding the order can settle itself.
// BeforeOrderTransition runs ahead of the order row lock: delivery rows are
// always locked before the orders they hold.
type DeliveryHook interface {
	BeforeOrderTransition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	AfterOrderTransition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) ([]notifications.Request, error)
}

// SlotPolicy reports whether a dormitory accepts a delivery time slot.
type SlotPolicy interface {
	AllowsTimeSlot(ctx context.Context, dormitory, slot string) (bool, error)
}

// Service is the order lifecycle manager.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	UpdateStatus(ctx context.Context, input TransitionInput) (*OrderView, error)
	Cancel(ctx context.Context, input CancelInput) (*OrderView, error)
	CancelInTx(ctx context.Context, tx *gorm.DB, input CancelInput) ([]notifications.Request, error)
	TransportInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) ([]notifications.Request, error)
	Delay(ctx context.Context, input DelayInput) ([]OrderView, error)
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error)
	History(ctx context.Context, actor Actor, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	ListForStudent(ctx context.Context, actor Actor, studentID uuid.UUID, params pagination.Params) (*OrderList, error)
	ActiveDeliveries(ctx context.Context, tx *gorm.DB, orderIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
}

type ServiceParams struct {
	Repo     Repository
	Ledger   ledger.Repository
	Tx       txRunner
	Outbox   outbox.Emitter
	Faults   bans.FaultRecorder
	Students *bans.Repository
	Slots    SlotPolicy
	Users    *users.Repository
	Notifier notifications.Notifier
	Hook     DeliveryHook
	Fees     config.FeesConfig
	Metrics  *metrics.TransitionMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	ledger   ledger.Repository
	tx       txRunner
	outbox   outbox.Emitter
	faults   bans.FaultRecorder
	students *bans.Repository
	slots    SlotPolicy
	users    *users.Repository
	notifier notifications.Notifier
	hook     DeliveryHook
	fees     config.FeesConfig
	metrics  *metrics.TransitionMetrics
	logg     *logger.Logger
}

// NewService builds the order lifecycle manager. Hook, Slots, Metrics and
// Logger are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("status ledger required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Faults == nil {
		return nil, fmt.Errorf("fault recorder required")
	}
	if params.Students == nil {
		return nil, fmt.Errorf("students repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		ledger:   params.Ledger,
		tx:       params.Tx,
		outbox:   params.Outbox,
		faults:   params.Faults,
		students: params.Students,
		slots:    params.Slots,
		users:    params.Users,
		notifier: params.Notifier,
		hook:     params.Hook,
		fees:     params.Fees,
		metrics:  params.Metrics,
		logg:     logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if err := authz.Check(authz.OpCreateOrder, input.Actor.Role); err != nil {
		return nil, err
	}
	checkCode := strings.TrimSpace(input.CheckCode)
	brand := strings.TrimSpace(input.Brand)
	if checkCode == "" || brand == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "check code and brand are required")
	}
	if !input.Weight.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodCash
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	isStudent := input.Actor.Role == enums.UserRoleStudent
	if isStudent {
		if err := s.prepareStudentCreate(ctx, &input); err != nil {
			return nil, err
		}
	}
	fee := ShippingFee(s.fees, input.Weight)

	var (
		result *CreateResult
		reqs   []notifications.Request
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.LockByCheckCode(ctx, checkCode, brand)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by check code")
		}
		if existing != nil {
			if !isStudent || !existing.Unclaimed() {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already registered")
			}
			result, reqs, err = s.claim(ctx, tx, existing, input, method)
			return err
		}

		order := &models.Order{
			CheckCode:       checkCode,
			Brand:           brand,
			Weight:          input.Weight,
			ShippingFee:     fee,
			RemainingAmount: fee,
			PaymentMethod:   method,
		}
		if isStudent {
			studentID := input.Actor.ID
			order.StudentID = &studentID
			order.DeliveryDate = input.DeliveryDate
			order.TimeSlot = input.TimeSlot
			order.Dormitory = input.Dormitory
			order.Building = input.Building
			order.Room = input.Room
			order.Phone = input.Phone
		}
		if err := repo.Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, checkCodeBrandConstraint) {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.record(ctx, tx, order, nil, ledger.OrderEntry{
			OrderID: order.ID,
			Status:  enums.OrderStatusPending,
			ActorID: actorID(input.Actor),
		}, input.Actor); err != nil {
			return err
		}
		reqs, err = s.statusRequests(ctx, tx, order, enums.OrderStatusPending, nil)
		if err != nil {
			return err
		}
		result = &CreateResult{Order: newOrderView(*order, enums.OrderStatusPending)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Inc("order", string(result.Order.Status))
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, result.Order.ID.String()), map[string]any{
		"status": result.Order.Status,
		"merged": result.Merged,
	}), "order.created")
	notifications.NotifyAll(ctx, s.notifier, reqs)
	return result, nil
}

// prepareStudentCreate checks the student may order and fills in the address
// from their residence when the request leaves it out.
func (s *service) prepareStudentCreate(ctx context.Context, input *CreateInput) error {
	if input.DeliveryDate == nil || input.DeliveryDate.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery date is required")
	}
	if input.TimeSlot == nil || strings.TrimSpace(*input.TimeSlot) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "time slot is required")
	}
	user, err := s.users.FindByID(ctx, input.Actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown user")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.Status == enums.AccountStatusBanned {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account is banned")
	}
	student, err := s.students.FindStudent(ctx, input.Actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "student profile is missing")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load student")
	}
	if blank(input.Dormitory) {
		input.Dormitory = &student.Dormitory
	}
	if blank(input.Building) {
		input.Building = &student.Building
	}
	if blank(input.Room) {
		input.Room = &student.Room
	}
	if blank(input.Phone) && !blank(user.Phone) {
		input.Phone = user.Phone
	}
	if s.slots != nil {
		ok, err := s.slots.AllowsTimeSlot(ctx, *input.Dormitory, *input.TimeSlot)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "time slot not allowed for dormitory")
		}
	}
	return nil
}

// claim attaches a student to a pre-registered parcel. A parcel still
// PENDING is accepted in the same step.
func (s *service) claim(ctx context.Context, tx *gorm.DB, order *models.Order, input CreateInput, method enums.PaymentMethod) (*CreateResult, []notifications.Request, error) {
	repo := s.repo.WithTx(tx)
	current, err := s.ledger.WithTx(tx).CurrentOrderStatus(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	if current.IsTerminal() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "order already closed")
	}

	studentID := input.Actor.ID
	if err := repo.Update(ctx, order.ID, map[string]any{
		"student_id":     studentID,
		"payment_method": method,
		"delivery_date":  input.DeliveryDate,
		"time_slot":      input.TimeSlot,
		"dormitory":      input.Dormitory,
		"building":       input.Building,
		"room":           input.Room,
		"phone":          input.Phone,
	}); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim order")
	}
	claimed, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}

	status := current
	var reqs []notifications.Request
	if current == enums.OrderStatusPending {
		status = enums.OrderStatusAccepted
		prev := current
		if err := s.record(ctx, tx, claimed, &prev, ledger.OrderEntry{
			OrderID: claimed.ID,
			Status:  status,
			ActorID: actorID(input.Actor),
		}, input.Actor); err != nil {
			return nil, nil, err
		}
		reqs, err = s.statusRequests(ctx, tx, claimed, status, nil)
		if err != nil {
			return nil, nil, err
		}
	}
	return &CreateResult{Order: newOrderView(*claimed, status), Merged: true}, reqs, nil
}

func (s *service) UpdateStatus(ctx context.Context, input TransitionInput) (*OrderView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	op, ok := authz.OperationForOrderStatus(input.Status)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if err := authz.Check(op, input.Actor.Role); err != nil {
		return nil, err
	}

	switch input.Status {
	case enums.OrderStatusCanceled:
		cancel := CancelInput{OrderID: input.OrderID, Actor: input.Actor}
		if input.ReasonType != nil {
			cancel.ReasonType = *input.ReasonType
		}
		if input.Reason != nil {
			cancel.Reason = *input.Reason
		}
		if input.EvidenceURL != nil {
			cancel.EvidenceURL = *input.EvidenceURL
		}
		return s.Cancel(ctx, cancel)
	case enums.OrderStatusInTransport:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders enter transport when their delivery is accepted")
	case enums.OrderStatusReceivedExternal, enums.OrderStatusDelivered:
		if blank(input.EvidenceURL) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "evidence image is required")
		}
	}

	var (
		view *OrderView
		reqs []notifications.Request
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.lockHolders(ctx, tx, input.OrderID); err != nil {
			return err
		}
		order, out, err := s.applyTransition(ctx, tx, input)
		if err != nil {
			return err
		}
		hookReqs, err := s.runHook(ctx, tx, order.ID, input.Actor)
		if err != nil {
			return err
		}
		reqs = append(out, hookReqs...)
		v := newOrderView(*order, input.Status)
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, view.ID, input.Status)
	notifications.NotifyAll(ctx, s.notifier, reqs)
	return view, nil
}

// TransportInTx moves an order to IN_TRANSPORT inside the caller's
// transaction. Accepting a delivery is the only path that does this.
func (s *service) TransportInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) ([]notifications.Request, error) {
	if err := authz.Check(authz.OpTransportOrder, actor.Role); err != nil {
		return nil, err
	}
	_, reqs, err := s.applyTransition(ctx, tx, TransitionInput{
		OrderID: orderID,
		Actor:   actor,
		Status:  enums.OrderStatusInTransport,
	})
	return reqs, err
}

func (s *service) applyTransition(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.Order, []notifications.Request, error) {
	repo := s.repo.WithTx(tx)
	order, err := s.lockOrder(ctx, repo, input.OrderID)
	if err != nil {
		return nil, nil, err
	}
	current, err := s.ledger.WithTx(tx).CurrentOrderStatus(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	if !CanTransition(current, input.Status) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", current, input.Status))
	}

	if input.Status == enums.OrderStatusDelivered &&
		order.PaymentMethod == enums.PaymentMethodCash &&
		input.Actor.Role == enums.UserRoleStaff &&
		!order.IsPaid {
		if err := repo.Update(ctx, order.ID, map[string]any{
			"remaining_amount": 0,
			"is_paid":          true,
		}); err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cash order paid")
		}
		order.RemainingAmount = 0
		order.IsPaid = true
	}

	if err := s.record(ctx, tx, order, &current, ledger.OrderEntry{
		OrderID:     order.ID,
		Status:      input.Status,
		Reason:      input.Reason,
		EvidenceURL: input.EvidenceURL,
		ActorID:     actorID(input.Actor),
	}, input.Actor); err != nil {
		return nil, nil, err
	}
	reqs, err := s.statusRequests(ctx, tx, order, input.Status, input.Reason)
	if err != nil {
		return nil, nil, err
	}
	return order, reqs, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*OrderView, error) {
	if err := authz.Check(authz.OpCancelOrder, input.Actor.Role); err != nil {
		return nil, err
	}
	if err := validateCancel(input); err != nil {
		return nil, err
	}

	var (
		view *OrderView
		reqs []notifications.Request
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.lockHolders(ctx, tx, input.OrderID); err != nil {
			return err
		}
		order, out, err := s.cancel(ctx, tx, input)
		if err != nil {
			return err
		}
		hookReqs, err := s.runHook(ctx, tx, order.ID, input.Actor)
		if err != nil {
			return err
		}
		reqs = append(out, hookReqs...)
		v := newOrderView(*order, enums.OrderStatusCanceled)
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, view.ID, enums.OrderStatusCanceled)
	notifications.NotifyAll(ctx, s.notifier, reqs)
	return view, nil
}

// CancelInTx cancels an order inside the caller's transaction and returns
// the notifications to send once it commits. The delivery hook is not run.
func (s *service) CancelInTx(ctx context.Context, tx *gorm.DB, input CancelInput) ([]notifications.Request, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := authz.Check(authz.OpCancelOrder, input.Actor.Role); err != nil {
		return nil, err
	}
	if err := validateCancel(input); err != nil {
		return nil, err
	}
	_, reqs, err := s.cancel(ctx, tx, input)
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("order", string(enums.OrderStatusCanceled))
	return reqs, nil
}

func (s *service) cancel(ctx context.Context, tx *gorm.DB, input CancelInput) (*models.Order, []notifications.Request, error) {
	order, err := s.lockOrder(ctx, s.repo.WithTx(tx), input.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkOwner(input.Actor, order); err != nil {
		return nil, nil, err
	}
	current, err := s.ledger.WithTx(tx).CurrentOrderStatus(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	if current.IsTerminal() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot cancel order in %s", current))
	}
	if !authz.CanCancelOrder(input.Actor.Role, current) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden,
			fmt.Sprintf("role %q may not cancel order in %s", input.Actor.Role, current))
	}

	if input.ReasonType == enums.CancelReasonStudentFault && order.StudentID != nil {
		outcome, err := s.faults.RecordFault(ctx, tx, *order.StudentID)
		if err != nil {
			return nil, nil, err
		}
		s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"student_id":   outcome.StudentID.String(),
			"number_fault": outcome.NumberFault,
			"banned":       outcome.Banned,
		}), "order.student_fault_recorded")
	}

	reason := strings.TrimSpace(input.Reason)
	reasonType := input.ReasonType
	evidence := strings.TrimSpace(input.EvidenceURL)
	if err := s.record(ctx, tx, order, &current, ledger.OrderEntry{
		OrderID:     order.ID,
		Status:      enums.OrderStatusCanceled,
		Reason:      &reason,
		ReasonType:  &reasonType,
		EvidenceURL: &evidence,
		ActorID:     actorID(input.Actor),
	}, input.Actor); err != nil {
		return nil, nil, err
	}
	reqs, err := s.statusRequests(ctx, tx, order, enums.OrderStatusCanceled, &reason)
	if err != nil {
		return nil, nil, err
	}
	return order, reqs, nil
}

func (s *service) Delay(ctx context.Context, input DelayInput) ([]OrderView, error) {
	if err := authz.Check(authz.OpDelayOrders, input.Actor.Role); err != nil {
		return nil, err
	}
	ids := uniqueIDs(input.OrderIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order ids are required")
	}
	slot := strings.TrimSpace(input.TimeSlot)
	if slot == "" || input.DeliveryDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery date and time slot are required")
	}

	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
	}
	if err := requireAll(ids, found); err != nil {
		return nil, err
	}
	if s.slots != nil {
		for _, order := range found {
			if order.Dormitory == nil {
				continue
			}
			ok, err := s.slots.AllowsTimeSlot(ctx, *order.Dormitory, slot)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "time slot not allowed for dormitory")
			}
		}
	}

	var views []OrderView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orders, err := repo.LockByIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock orders")
		}
		if err := requireAll(ids, orders); err != nil {
			return err
		}
		active, err := s.ActiveDeliveries(ctx, tx, ids)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order is already attached to a delivery")
		}
		statuses, err := s.ledger.WithTx(tx).CurrentOrderStatuses(ctx, ids)
		if err != nil {
			return err
		}

		views = make([]OrderView, 0, len(orders))
		for i := range orders {
			order := &orders[i]
			if err := checkOwner(input.Actor, order); err != nil {
				return err
			}
			status := statuses[order.ID]
			if status.IsTerminal() {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("order %s is already %s", order.ID, status))
			}
			if slotBefore(input.DeliveryDate, slot, order.DeliveryDate, order.TimeSlot) {
				return pkgerrors.New(pkgerrors.CodeValidation, "new time slot is earlier than the current one")
			}
			date := input.DeliveryDate
			if err := repo.Update(ctx, order.ID, map[string]any{
				"delivery_date": date,
				"time_slot":     slot,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reschedule order")
			}
			order.DeliveryDate = &date
			order.TimeSlot = &slot
			views = append(views, newOrderView(*order, status))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "order_count", len(views)), "order.delayed")
	return views, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error) {
	if err := authz.Check(authz.OpViewOrder, actor.Role); err != nil {
		return nil, err
	}
	order, err := s.findVisible(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	status, err := s.ledger.CurrentOrderStatus(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	view := newOrderView(*order, status)
	return &view, nil
}

func (s *service) History(ctx context.Context, actor Actor, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	if err := authz.Check(authz.OpViewOrder, actor.Role); err != nil {
		return nil, err
	}
	if _, err := s.findVisible(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.ledger.OrderHistory(ctx, orderID)
}

func (s *service) ListForStudent(ctx context.Context, actor Actor, studentID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if err := authz.Check(authz.OpViewOrder, actor.Role); err != nil {
		return nil, err
	}
	if actor.Role == enums.UserRoleStudent && actor.ID != studentID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "students may only list their own orders")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForStudent(ctx, studentID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	ids := make([]uuid.UUID, 0, len(page))
	for _, order := range page {
		ids = append(ids, order.ID)
	}
	statuses, err := s.ledger.CurrentOrderStatuses(ctx, ids)
	if err != nil {
		return nil, err
	}
	list := &OrderList{Orders: make([]OrderView, 0, len(page))}
	for _, order := range page {
		list.Orders = append(list.Orders, newOrderView(order, statuses[order.ID]))
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// ActiveDeliveries maps each order attached to a delivery that is not
// CANCELED to that delivery.
func (s *service) ActiveDeliveries(ctx context.Context, tx *gorm.DB, orderIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	repo := s.repo
	led := s.ledger
	if tx != nil {
		repo = repo.WithTx(tx)
		led = led.WithTx(tx)
	}
	links, err := repo.DeliveryLinks(ctx, orderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery links")
	}
	out := make(map[uuid.UUID]uuid.UUID)
	if len(links) == 0 {
		return out, nil
	}
	deliveryIDs := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		deliveryIDs = append(deliveryIDs, link.DeliveryID)
	}
	statuses, err := led.CurrentDeliveryStatuses(ctx, uniqueIDs(deliveryIDs))
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		status, ok := statuses[link.DeliveryID]
		if ok && status != enums.DeliveryStatusCanceled {
			out[link.OrderID] = link.DeliveryID
		}
	}
	return out, nil
}

// record writes the ledger row and the matching outbox event.
func (s *service) record(ctx context.Context, tx *gorm.DB, order *models.Order, previous *enums.OrderStatus, entry ledger.OrderEntry, actor Actor) error {
	if _, err := s.ledger.WithTx(tx).AppendOrder(ctx, entry); err != nil {
		return err
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(actor),
		Data: StatusChangedEvent{
			OrderID:    order.ID,
			StudentID:  order.StudentID,
			Status:     entry.Status,
			Previous:   previous,
			ReasonType: entry.ReasonType,
			IsPaid:     order.IsPaid,
			Remaining:  order.RemainingAmount,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
	}
	return nil
}

func (s *service) statusRequests(ctx context.Context, tx *gorm.DB, order *models.Order, status enums.OrderStatus, reason *string) ([]notifications.Request, error) {
	if order.StudentID == nil {
		return nil, nil
	}
	locales, err := s.users.WithTx(tx).Locales(ctx, []uuid.UUID{*order.StudentID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load student locale")
	}
	return []notifications.Request{
		notifications.OrderStatusRequest(*order.StudentID, order.ID, locales[*order.StudentID], order.CheckCode, status, reason),
	}, nil
}

func (s *service) lockHolders(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if s.hook == nil {
		return nil
	}
	return s.hook.BeforeOrderTransition(ctx, tx, orderID)
}

func (s *service) runHook(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) ([]notifications.Request, error) {
	if s.hook == nil {
		return nil, nil
	}
	return s.hook.AfterOrderTransition(ctx, tx, orderID, actor)
}

func (s *service) afterTransition(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) {
	s.metrics.Inc("order", string(status))
	s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, orderID.String()), "status", status), "order.transition")
}

func (s *service) lockOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	return order, nil
}

func (s *service) findVisible(ctx context.Context, actor Actor, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := checkOwner(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

// checkOwner restricts students to their own orders.
func checkOwner(actor Actor, order *models.Order) error {
	if actor.Role != enums.UserRoleStudent {
		return nil
	}
	if order.StudentID == nil || *order.StudentID != actor.ID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another student")
	}
	return nil
}

func validateCancel(input CancelInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.ReasonType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason type is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if strings.TrimSpace(input.EvidenceURL) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "evidence image is required")
	}
	return nil
}

func requireAll(ids []uuid.UUID, orders []models.Order) error {
	found := make(map[uuid.UUID]struct{}, len(orders))
	for _, order := range orders {
		found[order.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order %s does not exist", id))
		}
	}
	return nil
}

// slotBefore reports whether the requested schedule is earlier than the
// current one. Days compare first, then slots as "HH:MM" strings.
func slotBefore(date time.Time, slot string, currentDate *time.Time, currentSlot *string) bool {
	if currentDate == nil {
		return false
	}
	newDay := truncateDay(date)
	oldDay := truncateDay(*currentDate)
	if newDay.Before(oldDay) {
		return true
	}
	if newDay.After(oldDay) || currentSlot == nil {
		return false
	}
	return slot < *currentSlot
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func blank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}

func actorID(actor Actor) *uuid.UUID {
	if actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}

func buildActor(actor Actor) *outbox.ActorRef {
	if actor.ID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.ID, Role: string(actor.Role)}
}
