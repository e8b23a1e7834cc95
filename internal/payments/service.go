package payments

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/internal/authz"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
	"github.com/angelmondragon/dormship-backend/pkg/payos"
)

const (
	orderCodeConstraint = "ux_payments_order_code"
	orderCodeAttempts   = 5
	// orderCodes stay within 2^53 so browser clients read them exactly.
	maxOrderCode = 1<<53 - 1
	minOrderCode = 1000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Guard short-circuits redeliveries of webhooks that were already applied.
type Guard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// Service opens payment attempts and reconciles gateway webhooks.
type Service interface {
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*Checkout, error)
	ListForOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) ([]PaymentView, error)
	HandleWebhook(ctx context.Context, webhook payos.Webhook) (string, error)
}

type ServiceParams struct {
	Repo      Repository
	Orders    orders.Repository
	Users     *users.Repository
	Tx        txRunner
	Outbox    outbox.Emitter
	Notifier  notifications.Notifier
	Guard     Guard
	PayOS     config.PayOSConfig
	Metrics   *metrics.ReconcilerMetrics
	Logger    *logger.Logger
	Now       func() time.Time
	OrderCode func() int64
}

type service struct {
	repo      Repository
	orders    orders.Repository
	users     *users.Repository
	tx        txRunner
	outbox    outbox.Emitter
	notifier  notifications.Notifier
	guard     Guard
	cfg       config.PayOSConfig
	metrics   *metrics.ReconcilerMetrics
	logg      *logger.Logger
	now       func() time.Time
	orderCode func() int64
}

// NewService builds the payment reconciler. Guard and Metrics are optional.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	case params.Users == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	case strings.TrimSpace(params.PayOS.ChecksumKey) == "":
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payos checksum key required")
	}
	svc := &service{
		repo:      params.Repo,
		orders:    params.Orders,
		users:     params.Users,
		tx:        params.Tx,
		outbox:    params.Outbox,
		notifier:  params.Notifier,
		guard:     params.Guard,
		cfg:       params.PayOS,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       params.Now,
		orderCode: params.OrderCode,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.orderCode == nil {
		svc.orderCode = NewOrderCode
	}
	return svc, nil
}

// NewOrderCode draws a random numeric gateway code.
func NewOrderCode() int64 {
	id := uuid.New()
	code := int64(binary.BigEndian.Uint64(id[:8]) & maxOrderCode)
	if code < minOrderCode {
		code += minOrderCode
	}
	return code
}

func (s *service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*Checkout, error) {
	if err := authz.Check(authz.OpCreatePayment, input.Actor.Role); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).LockByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if input.Actor.Role == enums.UserRoleStudent && (order.StudentID == nil || *order.StudentID != input.Actor.ID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another student")
		}
		if order.IsPaid || order.RemainingAmount <= 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order is already paid")
		}
		amount := order.RemainingAmount
		if input.Amount != nil {
			amount = *input.Amount
		}
		if amount <= 0 || amount > order.RemainingAmount {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("amount must be between 1 and %d", order.RemainingAmount))
		}

		payment = &models.Payment{OrderID: order.ID, Amount: amount}
		return s.insert(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	req := payos.PaymentRequest{
		OrderCode:   payment.OrderCode,
		Amount:      payment.Amount,
		Description: fmt.Sprintf(s.cfg.DescriptionTmpl, payment.OrderCode),
		ReturnURL:   s.cfg.ReturnURL,
		CancelURL:   s.cfg.CancelURL,
	}
	if req.Signature, err = payos.SignPaymentRequest(req, s.cfg.ChecksumKey); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign payment request")
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, payment.OrderID.String()), map[string]any{
		"order_code": payment.OrderCode,
		"amount":     payment.Amount,
	}), "payment.created")
	return &Checkout{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		OrderCode: payment.OrderCode,
		Amount:    payment.Amount,
		Request:   req,
	}, nil
}

func (s *service) insert(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	for attempt := 1; attempt <= orderCodeAttempts; attempt++ {
		payment.OrderCode = s.orderCode()
		if payment.OrderCode == s.cfg.SentinelCode {
			continue
		}
		err := tx.Transaction(func(sp *gorm.DB) error {
			return s.repo.WithTx(sp).Create(ctx, payment)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, orderCodeConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order code")
}

func (s *service) ListForOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) ([]PaymentView, error) {
	if err := authz.Check(authz.OpViewOrder, actor.Role); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if actor.Role == enums.UserRoleStudent && (order.StudentID == nil || *order.StudentID != actor.ID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another student")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	out := make([]PaymentView, 0, len(rows))
	for _, p := range rows {
		out = append(out, newPaymentView(p))
	}
	return out, nil
}

// HandleWebhook applies one gateway callback and returns the outcome label.
// Failures come back as RECONCILIATION_ERROR for logging only; the caller
// acknowledges the gateway regardless.
func (s *service) HandleWebhook(ctx context.Context, webhook payos.Webhook) (string, error) {
	data, err := payos.VerifyWebhook(webhook, s.cfg.ChecksumKey)
	if err != nil {
		return s.drop(ctx, metrics.OutcomeInvalidSignature, pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "verify webhook"))
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_code": data.OrderCode,
		"amount":     data.Amount,
	})
	if data.OrderCode == s.cfg.SentinelCode {
		s.metrics.IncOutcome(metrics.OutcomeSentinel)
		s.logg.Info(ctx, "webhook.payos.sentinel")
		return metrics.OutcomeSentinel, nil
	}
	if data.Amount <= 0 {
		return s.drop(ctx, metrics.OutcomeError, pkgerrors.New(pkgerrors.CodeReconciliation, "webhook amount must be positive"))
	}

	if s.guard != nil {
		seen, err := s.guard.Seen(ctx, webhook.Signature)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook.payos.guard_unavailable")
		case seen:
			s.metrics.IncOutcome(metrics.OutcomeDuplicate)
			s.logg.Info(ctx, "webhook.payos.duplicate")
			return metrics.OutcomeDuplicate, nil
		}
	}

	outcome, req, err := s.reconcile(ctx, data)
	if err != nil {
		return s.drop(ctx, outcome, err)
	}
	if s.guard != nil {
		if err := s.guard.Remember(ctx, webhook.Signature); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook.payos.guard_mark_failed")
		}
	}

	s.metrics.IncOutcome(outcome)
	if outcome == metrics.OutcomeDuplicate {
		s.logg.Info(ctx, "webhook.payos.replayed")
		return outcome, nil
	}
	s.logg.Info(ctx, "payment.reconciled")
	if req != nil {
		s.notifier.Notify(ctx, *req)
	}
	return outcome, nil
}

func (s *service) reconcile(ctx context.Context, data *payos.WebhookData) (string, *notifications.Request, error) {
	outcome := metrics.OutcomeApplied
	var req *notifications.Request
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payments := s.repo.WithTx(tx)
		payment, err := payments.LockByOrderCode(ctx, data.OrderCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = metrics.OutcomeUnknownPayment
				return pkgerrors.New(pkgerrors.CodeReconciliation, "unknown payment")
			}
			outcome = metrics.OutcomeError
			return pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "lock payment")
		}
		orderRepo := s.orders.WithTx(tx)
		order, err := orderRepo.LockByID(ctx, payment.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = metrics.OutcomeUnknownPayment
				return pkgerrors.New(pkgerrors.CodeReconciliation, "payment references a missing order")
			}
			outcome = metrics.OutcomeError
			return pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "lock order")
		}

		var reference *string
		if ref := strings.TrimSpace(data.Reference); ref != "" {
			reference = &ref
		}
		flipped, err := payments.MarkPaid(ctx, payment.ID, PaidDetails{
			CounterAccountName:     data.CounterAccountName,
			CounterAccountNumber:   data.CounterAccountNumber,
			CounterAccountBankName: data.CounterAccountBankName,
			Reference:              reference,
			PaidAt:                 s.now().UTC(),
		})
		if err != nil {
			outcome = metrics.OutcomeError
			return pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "mark payment paid")
		}
		if !flipped {
			outcome = metrics.OutcomeDuplicate
			return nil
		}
		if data.Amount != payment.Amount {
			s.logg.Warn(s.logg.WithField(ctx, "expected_amount", payment.Amount), "webhook.payos.amount_mismatch")
		}

		remaining := order.RemainingAmount - data.Amount
		if remaining < 0 {
			remaining = 0
		}
		paid := remaining <= 0
		if err := orderRepo.Update(ctx, order.ID, map[string]any{
			"remaining_amount": remaining,
			"is_paid":          paid,
		}); err != nil {
			outcome = metrics.OutcomeError
			return pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "update order balance")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReconciled,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: ReconciledEvent{
				PaymentID: payment.ID,
				OrderID:   order.ID,
				OrderCode: payment.OrderCode,
				Amount:    data.Amount,
				Remaining: remaining,
				IsPaid:    paid,
			},
		}); err != nil {
			outcome = metrics.OutcomeError
			return pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "emit payment event")
		}

		if order.StudentID != nil {
			locales, err := s.users.WithTx(tx).Locales(ctx, []uuid.UUID{*order.StudentID})
			if err != nil {
				outcome = metrics.OutcomeError
				return pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "load student locale")
			}
			r := notifications.PaymentRequest(*order.StudentID, order.ID, locales[*order.StudentID],
				order.CheckCode, data.Amount, remaining, paid)
			req = &r
		}
		return nil
	})
	if err != nil && pkgerrors.As(err) == nil {
		return metrics.OutcomeError, nil, pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "commit payment")
	}
	return outcome, req, err
}

func (s *service) drop(ctx context.Context, outcome string, err error) (string, error) {
	s.metrics.IncOutcome(outcome)
	s.logg.Error(s.logg.WithField(ctx, "outcome", outcome), "webhook.payos.dropped", err)
	return outcome, err
}
