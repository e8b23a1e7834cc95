package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/internal/bans"
	"github.com/angelmondragon/dormship-backend/internal/ledger"
	"github.com/angelmondragon/dormship-backend/internal/notifications"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
	"github.com/angelmondragon/dormship-backend/pkg/pagination"
)

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []notifications.Request
}

func (n *recordingNotifier) Notify(_ context.Context, req notifications.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reqs)
}

type stubHook struct {
	calls     int
	err       error
	beforeErr error
	seen      []enums.OrderStatus
	ledger    ledger.Repository
}

func (h *stubHook) BeforeOrderTransition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if h.ledger != nil {
		status, err := h.ledger.WithTx(tx).CurrentOrderStatus(ctx, orderID)
		if err != nil {
			return err
		}
		h.seen = append(h.seen, status)
	}
	return h.beforeErr
}

func (h *stubHook) AfterOrderTransition(context.Context, *gorm.DB, uuid.UUID, Actor) ([]notifications.Request, error) {
	h.calls++
	return nil, h.err
}

type harness struct {
	svc      Service
	client   *db.Client
	ledger   ledger.Repository
	notifier *recordingNotifier
	hook     *stubHook
	staff    Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	userRepo := users.NewRepository(client.DB())
	banRepo := bans.NewRepository(client.DB())
	banSvc, err := bans.NewService(bans.ServiceParams{
		Repo:             banRepo,
		Users:            userRepo,
		Tx:               client,
		DefaultThreshold: 3,
	})
	require.NoError(t, err)

	h := &harness{
		client:   client,
		ledger:   ledger.NewRepository(client.DB()),
		notifier: &recordingNotifier{},
		hook:     &stubHook{},
	}
	h.svc, err = NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Ledger:   h.ledger,
		Tx:       client,
		Outbox:   outbox.NewWriter(nil),
		Faults:   banSvc,
		Students: banRepo,
		Slots:    banSvc,
		Users:    userRepo,
		Notifier: h.notifier,
		Hook:     h.hook,
		Fees: config.FeesConfig{
			BaseFee:      10000,
			PerKgFee:     5000,
			FreeWeightKg: decimal.NewFromInt(1),
			RoundTo:      1000,
		},
	})
	require.NoError(t, err)

	staff := &models.User{Email: "staff@example.com", Name: "Staff", Role: enums.UserRoleStaff, Locale: "vi"}
	require.NoError(t, client.DB().Create(staff).Error)
	h.staff = Actor{ID: staff.ID, Role: enums.UserRoleStaff}
	return h
}

func (h *harness) seedStudent(t *testing.T, faults int) Actor {
	t.Helper()
	user := &models.User{Email: uuid.NewString() + "@example.com", Name: "Student", Phone: strPtr("0900000000"), Role: enums.UserRoleStudent, Locale: "en"}
	require.NoError(t, h.client.DB().Create(user).Error)
	require.NoError(t, h.client.DB().Create(&models.Student{
		UserID:      user.ID,
		Dormitory:   "A",
		Building:    "A1",
		Room:        "204",
		NumberFault: faults,
	}).Error)
	return Actor{ID: user.ID, Role: enums.UserRoleStudent}
}

func studentCreate(student Actor, checkCode string) CreateInput {
	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	slot := "18:00"
	return CreateInput{
		Actor:         student,
		CheckCode:     checkCode,
		Brand:         "Shopee",
		Weight:        decimal.NewFromInt(2),
		PaymentMethod: enums.PaymentMethodCash,
		DeliveryDate:  &date,
		TimeSlot:      &slot,
	}
}

func (h *harness) statuses(t *testing.T, orderID uuid.UUID) []enums.OrderStatus {
	t.Helper()
	rows, err := h.ledger.OrderHistory(context.Background(), orderID)
	require.NoError(t, err)
	out := make([]enums.OrderStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Status)
	}
	return out
}

func (h *harness) move(t *testing.T, orderID uuid.UUID, statuses ...enums.OrderStatus) {
	t.Helper()
	evidence := "https://cdn.example.com/evidence.jpg"
	for _, status := range statuses {
		if status == enums.OrderStatusInTransport {
			require.NoError(t, h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := h.svc.TransportInTx(context.Background(), tx, orderID, h.staff)
				return err
			}))
			continue
		}
		_, err := h.svc.UpdateStatus(context.Background(), TransitionInput{
			OrderID:     orderID,
			Actor:       h.staff,
			Status:      status,
			EvidenceURL: &evidence,
		})
		require.NoError(t, err)
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestCreate_StudentOrderStartsPending(t *testing.T) {
	h := newHarness(t)
	student := h.seedStudent(t, 0)

	res, err := h.svc.Create(context.Background(), studentCreate(student, "X1"))
	require.NoError(t, err)
	require.False(t, res.Merged)
	require.Equal(t, enums.OrderStatusPending, res.Order.Status)
	require.Equal(t, int64(15000), res.Order.ShippingFee)
	require.Equal(t, res.Order.ShippingFee, res.Order.RemainingAmount)
	require.Equal(t, "A", *res.Order.Dormitory)
	require.Equal(t, "204", *res.Order.Room)
	require.Equal(t, "0900000000", *res.Order.Phone)

	require.Equal(t, []enums.OrderStatus{enums.OrderStatusPending}, h.statuses(t, res.Order.ID))
	require.Equal(t, 1, h.notifier.count())
	require.Equal(t, student.ID, h.notifier.reqs[0].UserID)
	require.Equal(t, "Order X1 has been created.", h.notifier.reqs[0].Message)

	var events int64
	require.NoError(t, h.client.DB().Model(&models.OutboxEvent{}).Count(&events).Error)
	require.Equal(t, int64(1), events)
}

func TestCreate_PhoneFallsBackToProfile(t *testing.T) {
	h := newHarness(t)
	student := h.seedStudent(t, 0)
	require.NoError(t, h.client.DB().Model(&models.User{}).Where("id = ?", student.ID).Update("phone", nil).Error)

	res, err := h.svc.Create(context.Background(), studentCreate(student, "P1"))
	require.NoError(t, err)
	require.Nil(t, res.Order.Phone)

	input := studentCreate(student, "P2")
	input.Phone = strPtr("0911111111")
	res, err = h.svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "0911111111", *res.Order.Phone)
}

func TestCreate_ClaimsPreRegisteredParcel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pre, err := h.svc.Create(ctx, CreateInput{
		Actor:     h.staff,
		CheckCode: "X1",
		Brand:     "Shopee",
		Weight:    decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)
	require.Nil(t, pre.Order.StudentID)
	require.Equal(t, 0, h.notifier.count())

	student := h.seedStudent(t, 0)
	claimed, err := h.svc.Create(ctx, studentCreate(student, "X1"))
	require.NoError(t, err)
	require.True(t, claimed.Merged)
	require.Equal(t, pre.Order.ID, claimed.Order.ID)
	require.Equal(t, enums.OrderStatusAccepted, claimed.Order.Status)
	require.Equal(t, student.ID, *claimed.Order.StudentID)
	require.Equal(t, int64(10000), claimed.Order.ShippingFee)
	require.Equal(t, []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusAccepted}, h.statuses(t, pre.Order.ID))

	var count int64
	require.NoError(t, h.client.DB().Model(&models.Order{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	other := h.seedStudent(t, 0)
	_, err = h.svc.Create(ctx, studentCreate(other, "X1"))
	requireCode(t, err, pkgerrors.CodeConflict)

	_, err = h.svc.Create(ctx, CreateInput{Actor: h.staff, CheckCode: "X1", Brand: "Shopee", Weight: decimal.NewFromInt(1)})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := h.seedStudent(t, 0)

	input := studentCreate(student, "")
	_, err := h.svc.Create(ctx, input)
	requireCode(t, err, pkgerrors.CodeValidation)

	input = studentCreate(student, "X2")
	input.Weight = decimal.Zero
	_, err = h.svc.Create(ctx, input)
	requireCode(t, err, pkgerrors.CodeValidation)

	input = studentCreate(student, "X2")
	input.TimeSlot = nil
	_, err = h.svc.Create(ctx, input)
	requireCode(t, err, pkgerrors.CodeValidation)

	require.NoError(t, h.client.DB().Model(&models.User{}).Where("id = ?", student.ID).Update("status", enums.AccountStatusBanned).Error)
	_, err = h.svc.Create(ctx, studentCreate(student, "X2"))
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestUpdateStatus_FullLifecycleMarksCashPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := h.seedStudent(t, 0)
	res, err := h.svc.Create(ctx, studentCreate(student, "X1"))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = h.svc.UpdateStatus(ctx, TransitionInput{OrderID: id, Actor: student, Status: enums.OrderStatusAccepted})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = h.svc.UpdateStatus(ctx, TransitionInput{OrderID: id, Actor: h.staff, Status: enums.OrderStatusDelivered, EvidenceURL: strPtr("x")})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	h.move(t, id, enums.OrderStatusAccepted)

	_, err = h.svc.UpdateStatus(ctx, TransitionInput{OrderID: id, Actor: h.staff, Status: enums.OrderStatusReceivedExternal})
	requireCode(t, err, pkgerrors.CodeValidation)

	h.move(t, id, enums.OrderStatusReceivedExternal)

	_, err = h.svc.UpdateStatus(ctx, TransitionInput{OrderID: id, Actor: h.staff, Status: enums.OrderStatusInTransport})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	h.move(t, id, enums.OrderStatusInTransport)
	view, err := h.svc.Get(ctx, student, id)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusInTransport, view.Status)
	require.False(t, view.IsPaid)

	h.move(t, id, enums.OrderStatusDelivered)
	view, err = h.svc.Get(ctx, student, id)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, view.Status)
	require.True(t, view.IsPaid)
	require.Zero(t, view.RemainingAmount)

	require.Equal(t, []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusAccepted,
		enums.OrderStatusReceivedExternal,
		enums.OrderStatusInTransport,
		enums.OrderStatusDelivered,
	}, h.statuses(t, id))
	require.Equal(t, 4, h.notifier.count())
	require.Equal(t, 3, h.hook.calls)
}

func TestUpdateStatus_AdminDeliveryLeavesBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := h.seedStudent(t, 0)
	res, err := h.svc.Create(ctx, studentCreate(student, "X1"))
	require.NoError(t, err)
	h.move(t, res.Order.ID, enums.OrderStatusAccepted, enums.OrderStatusReceivedExternal, enums.OrderStatusInTransport)

	admin := Actor{ID: uuid.New(), Role: enums.UserRoleAdmin}
	view, err := h.svc.UpdateStatus(ctx, TransitionInput{OrderID: res.Order.ID, Actor: admin, Status: enums.OrderStatusDelivered, EvidenceURL: strPtr("x")})
	require.NoError(t, err)
	require.False(t, view.IsPaid)
	require.Equal(t, res.Order.ShippingFee, view.RemainingAmount)
}

func TestCancel_RoleMatrix(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := h.seedStudent(t, 0)
	res, err := h.svc.Create(ctx, studentCreate(student, "X1"))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = h.svc.Cancel(ctx, CancelInput{OrderID: id, Actor: student, ReasonType: enums.CancelReasonExternal, Reason: "changed my mind"})
	requireCode(t, err, pkgerrors.CodeValidation)

	h.move(t, id, enums.OrderStatusAccepted, enums.OrderStatusReceivedExternal)
	cancel := CancelInput{OrderID: id, Actor: student, ReasonType: enums.CancelReasonExternal, Reason: "changed my mind", EvidenceURL: "x"}
	_, err = h.svc.Cancel(ctx, cancel)
	requireCode(t, err, pkgerrors.CodeForbidden)

	other := h.seedStudent(t, 0)
	cancel.Actor = other
	_, err = h.svc.Cancel(ctx, cancel)
	requireCode(t, err, pkgerrors.CodeForbidden)

	cancel.Actor = h.staff
	view, err := h.svc.Cancel(ctx, cancel)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCanceled, view.Status)

	_, err = h.svc.Cancel(ctx, cancel)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	rows, err := h.ledger.OrderHistory(ctx, id)
	require.NoError(t, err)
	last := rows[len(rows)-1]
	require.Equal(t, enums.OrderStatusCanceled, last.Status)
	require.Equal(t, "changed my mind", *last.Reason)
	require.Equal(t, enums.CancelReasonExternal, *last.ReasonType)
	require.Equal(t, h.staff.ID, *last.ActorID)
}

func TestCancel_StudentFaultBansAtThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := h.seedStudent(t, 2)
	res, err := h.svc.Create(ctx, studentCreate(student, "X1"))
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, TransitionInput{
		OrderID:     res.Order.ID,
		Actor:       h.staff,
		Status:      enums.OrderStatusCanceled,
		ReasonType:  reasonPtr(enums.CancelReasonStudentFault),
		Reason:      strPtr("not at dormitory"),
		EvidenceURL: strPtr("x"),
	})
	require.NoError(t, err)

	var st models.Student
	require.NoError(t, h.client.DB().First(&st, "user_id = ?", student.ID).Error)
	require.Equal(t, 3, st.NumberFault)
	var user models.User
	require.NoError(t, h.client.DB().First(&user, "id = ?", student.ID).Error)
	require.Equal(t, enums.AccountStatusBanned, user.Status)
}

func TestTransitions_LockDeliveriesBeforeTheOrder(t *testing.T) {
	h := newHarness(t)
	h.hook.ledger = h.ledger
	ctx := context.Background()
	student := h.seedStudent(t, 0)
	res, err := h.svc.Create(ctx, studentCreate(student, "X1"))
	require.NoError(t, err)

	h.move(t, res.Order.ID, enums.OrderStatusAccepted)
	_, err = h.svc.Cancel(ctx, CancelInput{
		OrderID:     res.Order.ID,
		Actor:       h.staff,
		ReasonType:  enums.CancelReasonExternal,
		Reason:      "lost",
		EvidenceURL: "x",
	})
	require.NoError(t, err)
	require.Equal(t, []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusAccepted}, h.hook.seen)

	other, err := h.svc.Create(ctx, studentCreate(student, "X2"))
	require.NoError(t, err)
	h.hook.beforeErr = pkgerrors.New(pkgerrors.CodeDependency, "lock delivery")
	_, err = h.svc.UpdateStatus(ctx, TransitionInput{OrderID: other.Order.ID, Actor: h.staff, Status: enums.OrderStatusAccepted})
	requireCode(t, err, pkgerrors.CodeDependency)
	require.Equal(t, []enums.OrderStatus{enums.OrderStatusPending}, h.statuses(t, other.Order.ID))
}

func TestCancel_FailureAfterFaultRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := h.seedStudent(t, 2)
	res, err := h.svc.Create(ctx, studentCreate(student, "X1"))
	require.NoError(t, err)
	before := h.notifier.count()

	h.hook.err = errors.New("settlement failed")
	_, err = h.svc.Cancel(ctx, CancelInput{
		OrderID:     res.Order.ID,
		Actor:       h.staff,
		ReasonType:  enums.CancelReasonStudentFault,
		Reason:      "not at dormitory",
		EvidenceURL: "x",
	})
	require.Error(t, err)

	var st models.Student
	require.NoError(t, h.client.DB().First(&st, "user_id = ?", student.ID).Error)
	require.Equal(t, 2, st.NumberFault)
	var user models.User
	require.NoError(t, h.client.DB().First(&user, "id = ?", student.ID).Error)
	require.Equal(t, enums.AccountStatusActive, user.Status)
	require.Equal(t, []enums.OrderStatus{enums.OrderStatusPending}, h.statuses(t, res.Order.ID))
	require.Equal(t, before, h.notifier.count())
}

func TestDelay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := h.seedStudent(t, 0)
	first, err := h.svc.Create(ctx, studentCreate(student, "X1"))
	require.NoError(t, err)
	second, err := h.svc.Create(ctx, studentCreate(student, "X2"))
	require.NoError(t, err)
	ids := []uuid.UUID{first.Order.ID, second.Order.ID}
	sameDay := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	_, err = h.svc.Delay(ctx, DelayInput{Actor: student, OrderIDs: append(ids, uuid.New()), DeliveryDate: sameDay, TimeSlot: "20:00"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Delay(ctx, DelayInput{Actor: student, OrderIDs: ids, DeliveryDate: sameDay, TimeSlot: "07:00"})
	requireCode(t, err, pkgerrors.CodeValidation)

	views, err := h.svc.Delay(ctx, DelayInput{Actor: student, OrderIDs: ids, DeliveryDate: sameDay, TimeSlot: "20:00"})
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		require.Equal(t, "20:00", *v.TimeSlot)
	}

	delivery := &models.Delivery{DisplayID: "DL-261020-AAAAAA", StaffID: h.staff.ID}
	require.NoError(t, h.client.DB().Create(delivery).Error)
	require.NoError(t, h.client.DB().Create(&models.DeliveryOrder{DeliveryID: delivery.ID, OrderID: second.Order.ID, OrderSequence: 1}).Error)
	_, err = h.ledger.AppendDelivery(ctx, ledger.DeliveryEntry{DeliveryID: delivery.ID, Status: enums.DeliveryStatusPending})
	require.NoError(t, err)

	nextDay := sameDay.AddDate(0, 0, 1)
	_, err = h.svc.Delay(ctx, DelayInput{Actor: student, OrderIDs: ids, DeliveryDate: nextDay, TimeSlot: "07:00"})
	requireCode(t, err, pkgerrors.CodeValidation)

	var reloaded models.Order
	require.NoError(t, h.client.DB().First(&reloaded, "id = ?", first.Order.ID).Error)
	require.Equal(t, "20:00", *reloaded.TimeSlot)

	_, err = h.ledger.AppendDelivery(ctx, ledger.DeliveryEntry{DeliveryID: delivery.ID, Status: enums.DeliveryStatusCanceled})
	require.NoError(t, err)
	_, err = h.svc.Delay(ctx, DelayInput{Actor: student, OrderIDs: ids, DeliveryDate: nextDay, TimeSlot: "07:00"})
	require.NoError(t, err)
}

func TestListForStudent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := h.seedStudent(t, 0)
	for _, code := range []string{"X1", "X2", "X3"} {
		_, err := h.svc.Create(ctx, studentCreate(student, code))
		require.NoError(t, err)
	}

	page, err := h.svc.ListForStudent(ctx, student, student.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := h.svc.ListForStudent(ctx, student, student.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	require.Empty(t, rest.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, o := range append(page.Orders, rest.Orders...) {
		require.Equal(t, enums.OrderStatusPending, o.Status)
		seen[o.ID] = true
	}
	require.Len(t, seen, 3)

	other := h.seedStudent(t, 0)
	_, err = h.svc.ListForStudent(ctx, other, student.ID, pagination.Params{})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func strPtr(v string) *string { return &v }

func reasonPtr(v enums.CancelReasonType) *enums.CancelReasonType { return &v }
