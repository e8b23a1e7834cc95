package deliveries

import (
	"context"
	"fmt"
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
	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/db"
	"github.com/angelmondragon/dormship-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/grouping"
	"github.com/angelmondragon/dormship-backend/pkg/outbox"
)

const evidence = "https://cdn.example.com/evidence.jpg"

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []notifications.Request
}

func (n *recordingNotifier) Notify(_ context.Context, req notifications.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = nil
}

func (n *recordingNotifier) snapshot() []notifications.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Request(nil), n.reqs...)
}

type stubGrouper struct {
	groupReq grouping.GroupRequest
	route    func([]grouping.Stop) []grouping.Stop
}

func (g *stubGrouper) GroupOrders(_ context.Context, req grouping.GroupRequest) (*grouping.GroupResult, error) {
	g.groupReq = req
	return &grouping.GroupResult{Deliveries: [][]grouping.Order{req.Orders}}, nil
}

func (g *stubGrouper) RouteOrders(_ context.Context, stops []grouping.Stop) ([]grouping.Stop, error) {
	return g.route(stops), nil
}

type harness struct {
	svc      Service
	orders   orders.Service
	client   *db.Client
	ledger   ledger.Repository
	notifier *recordingNotifier
	grouper  *stubGrouper
	locks    *lockJournal
	staff    orders.Actor
	admin    orders.Actor
}

type harnessOption func(*ServiceParams)

// lockJournal records row locks in the order they are taken.
type lockJournal struct {
	mu      sync.Mutex
	entries []string
}

func (j *lockJournal) add(kind string, id uuid.UUID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, kind+":"+id.String())
}

func (j *lockJournal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

func (j *lockJournal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type journaledDeliveries struct {
	Repository
	journal *lockJournal
}

func (r journaledDeliveries) WithTx(tx *gorm.DB) Repository {
	return journaledDeliveries{Repository: r.Repository.WithTx(tx), journal: r.journal}
}

func (r journaledDeliveries) LockByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	r.journal.add("delivery", id)
	return r.Repository.LockByID(ctx, id)
}

type journaledOrders struct {
	orders.Repository
	journal *lockJournal
}

func (r journaledOrders) WithTx(tx *gorm.DB) orders.Repository {
	return journaledOrders{Repository: r.Repository.WithTx(tx), journal: r.journal}
}

func (r journaledOrders) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	r.journal.add("order", id)
	return r.Repository.LockByID(ctx, id)
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
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
		grouper:  &stubGrouper{},
		locks:    &lockJournal{},
	}
	emitter := outbox.NewWriter(nil)
	repo := journaledDeliveries{Repository: NewRepository(client.DB()), journal: h.locks}
	settler, err := NewSettler(SettlerParams{
		Repo:   repo,
		Ledger: h.ledger,
		Users:  userRepo,
		Outbox: emitter,
	})
	require.NoError(t, err)

	orderRepo := journaledOrders{Repository: orders.NewRepository(client.DB()), journal: h.locks}
	h.orders, err = orders.NewService(orders.ServiceParams{
		Repo:     orderRepo,
		Ledger:   h.ledger,
		Tx:       client,
		Outbox:   emitter,
		Faults:   banSvc,
		Students: banRepo,
		Slots:    banSvc,
		Users:    userRepo,
		Notifier: h.notifier,
		Hook:     settler,
		Fees: config.FeesConfig{
			BaseFee:      10000,
			PerKgFee:     5000,
			FreeWeightKg: decimal.NewFromInt(1),
			RoundTo:      1000,
		},
	})
	require.NoError(t, err)

	params := ServiceParams{
		Repo:      repo,
		Orders:    h.orders,
		OrderRepo: orderRepo,
		Ledger:    h.ledger,
		Users:     userRepo,
		Tx:        client,
		Outbox:    emitter,
		Notifier:  h.notifier,
		Grouper:   h.grouper,
	}
	for _, opt := range opts {
		opt(&params)
	}
	h.svc, err = NewService(params)
	require.NoError(t, err)

	h.staff = h.seedUser(t, enums.UserRoleStaff)
	h.admin = h.seedUser(t, enums.UserRoleAdmin)
	return h
}

func (h *harness) seedUser(t *testing.T, role enums.UserRole) orders.Actor {
	t.Helper()
	user := &models.User{Email: uuid.NewString() + "@example.com", Name: string(role), Role: role, Locale: "en"}
	require.NoError(t, h.client.DB().Create(user).Error)
	return orders.Actor{ID: user.ID, Role: role}
}

// receivedOrder creates a student order and walks it to RECEIVED_EXTERNAL.
func (h *harness) receivedOrder(t *testing.T, checkCode, room string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	student := h.seedUser(t, enums.UserRoleStudent)
	require.NoError(t, h.client.DB().Create(&models.Student{
		UserID:    student.ID,
		Dormitory: "A",
		Building:  "A1",
		Room:      room,
	}).Error)

	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	slot := "18:00"
	res, err := h.orders.Create(ctx, orders.CreateInput{
		Actor:         student,
		CheckCode:     checkCode,
		Brand:         "Shopee",
		Weight:        decimal.NewFromInt(1),
		PaymentMethod: enums.PaymentMethodCash,
		DeliveryDate:  &date,
		TimeSlot:      &slot,
	})
	require.NoError(t, err)

	ev := evidence
	for _, status := range []enums.OrderStatus{enums.OrderStatusAccepted, enums.OrderStatusReceivedExternal} {
		_, err := h.orders.UpdateStatus(ctx, orders.TransitionInput{
			OrderID:     res.Order.ID,
			Actor:       h.staff,
			Status:      status,
			EvidenceURL: &ev,
		})
		require.NoError(t, err)
	}
	return res.Order.ID
}

func (h *harness) deliver(t *testing.T, orderID uuid.UUID) {
	t.Helper()
	ev := evidence
	_, err := h.orders.UpdateStatus(context.Background(), orders.TransitionInput{
		OrderID:     orderID,
		Actor:       h.staff,
		Status:      enums.OrderStatusDelivered,
		EvidenceURL: &ev,
	})
	require.NoError(t, err)
}

func (h *harness) orderStatus(t *testing.T, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	status, err := h.ledger.CurrentOrderStatus(context.Background(), orderID)
	require.NoError(t, err)
	return status
}

func (h *harness) deliveryStatus(t *testing.T, deliveryID uuid.UUID) enums.DeliveryStatus {
	t.Helper()
	status, err := h.ledger.CurrentDeliveryStatus(context.Background(), deliveryID)
	require.NoError(t, err)
	return status
}

func (h *harness) create(t *testing.T, orderIDs ...uuid.UUID) *DeliveryView {
	t.Helper()
	view, err := h.svc.Create(context.Background(), CreateInput{Actor: h.staff, OrderIDs: orderIDs})
	require.NoError(t, err)
	return view
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestCreate_AssignsStaffAndStartsPending(t *testing.T) {
	h := newHarness(t)
	first := h.receivedOrder(t, "C1", "101")
	second := h.receivedOrder(t, "C2", "102")
	h.notifier.reset()

	view := h.create(t, second, first)
	require.Equal(t, enums.DeliveryStatusPending, view.Status)
	require.Equal(t, h.staff.ID, view.StaffID)
	require.Regexp(t, `^DL-\d{6}-[0-9A-F]{6}$`, view.DisplayID)
	require.Len(t, view.Orders, 2)
	require.Equal(t, second, view.Orders[0].OrderID)
	require.Equal(t, 1, view.Orders[0].Sequence)
	require.Equal(t, first, view.Orders[1].OrderID)

	var order models.Order
	require.NoError(t, h.client.DB().First(&order, "id = ?", first).Error)
	require.NotNil(t, order.ShipperID)
	require.Equal(t, h.staff.ID, *order.ShipperID)

	reqs := h.notifier.snapshot()
	require.Len(t, reqs, 1)
	require.Equal(t, h.staff.ID, reqs[0].UserID)
}

func TestCreate_RejectsUnreadyOrAttachedOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ready := h.receivedOrder(t, "C1", "101")
	h.create(t, ready)

	_, err := h.svc.Create(ctx, CreateInput{Actor: h.staff, OrderIDs: []uuid.UUID{ready}})
	requireCode(t, err, pkgerrors.CodeConflict)

	_, err = h.svc.Create(ctx, CreateInput{Actor: h.staff, OrderIDs: []uuid.UUID{uuid.New()}})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = h.svc.Create(ctx, CreateInput{Actor: h.staff})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, CreateInput{Actor: h.admin, OrderIDs: []uuid.UUID{ready}})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, CreateInput{Actor: orders.Actor{ID: uuid.New(), Role: enums.UserRoleStudent}, OrderIDs: []uuid.UUID{ready}})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestCreate_RetriesDisplayIDCollision(t *testing.T) {
	ids := []string{"DL-261015-AAAAAA", "DL-261015-AAAAAA", "DL-261015-BBBBBB"}
	var calls int
	h := newHarness(t, func(p *ServiceParams) {
		p.DisplayID = func(time.Time) string {
			id := ids[calls]
			calls++
			return id
		}
	})
	first := h.create(t, h.receivedOrder(t, "C1", "101"))
	second := h.create(t, h.receivedOrder(t, "C2", "102"))

	require.Equal(t, "DL-261015-AAAAAA", first.DisplayID)
	require.Equal(t, "DL-261015-BBBBBB", second.DisplayID)
	require.Equal(t, 3, calls)
	require.Equal(t, enums.DeliveryStatusPending, h.deliveryStatus(t, second.ID))
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) {
		p.DisplayID = func(time.Time) string { return "DL-261015-AAAAAA" }
	})
	h.create(t, h.receivedOrder(t, "C1", "101"))
	order := h.receivedOrder(t, "C2", "102")

	_, err := h.svc.Create(context.Background(), CreateInput{Actor: h.staff, OrderIDs: []uuid.UUID{order}})
	requireCode(t, err, pkgerrors.CodeConflict)

	var links int64
	require.NoError(t, h.client.DB().Model(&models.DeliveryOrder{}).Where("order_id = ?", order).Count(&links).Error)
	require.Zero(t, links)
	var stored models.Order
	require.NoError(t, h.client.DB().First(&stored, "id = ?", order).Error)
	require.Nil(t, stored.ShipperID)
}

func TestAccept_MovesOrdersInTransport(t *testing.T) {
	h := newHarness(t)
	first := h.receivedOrder(t, "C1", "101")
	second := h.receivedOrder(t, "C2", "102")
	view := h.create(t, first, second)
	h.notifier.reset()

	accepted, err := h.svc.Accept(context.Background(), ActionInput{DeliveryID: view.ID, Actor: h.staff})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusAccepted, accepted.Status)
	for _, o := range accepted.Orders {
		require.Equal(t, enums.OrderStatusInTransport, o.Status)
	}
	// one staff notice plus one per student
	require.Len(t, h.notifier.snapshot(), 3)

	_, err = h.svc.Accept(context.Background(), ActionInput{DeliveryID: view.ID, Actor: h.staff})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestAccept_RejectsSecondActiveDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d1 := h.create(t, h.receivedOrder(t, "C1", "101"))
	d2 := h.create(t, h.receivedOrder(t, "C2", "102"))

	_, err := h.svc.Accept(ctx, ActionInput{DeliveryID: d1.ID, Actor: h.staff})
	require.NoError(t, err)

	_, err = h.svc.Accept(ctx, ActionInput{DeliveryID: d2.ID, Actor: h.staff})
	requireCode(t, err, pkgerrors.CodeConflict)
	require.Equal(t, enums.DeliveryStatusPending, h.deliveryStatus(t, d2.ID))
}

func TestAccept_OnlyOwningStaff(t *testing.T) {
	h := newHarness(t)
	view := h.create(t, h.receivedOrder(t, "C1", "101"))
	other := h.seedUser(t, enums.UserRoleStaff)

	_, err := h.svc.Accept(context.Background(), ActionInput{DeliveryID: view.ID, Actor: other})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = h.svc.Accept(context.Background(), ActionInput{DeliveryID: view.ID, Actor: h.admin})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestCancel_CascadesOnlyToOrdersInTransport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	delivered := h.receivedOrder(t, "C1", "101")
	second := h.receivedOrder(t, "C2", "102")
	third := h.receivedOrder(t, "C3", "103")
	view := h.create(t, delivered, second, third)
	_, err := h.svc.Accept(ctx, ActionInput{DeliveryID: view.ID, Actor: h.staff})
	require.NoError(t, err)
	h.deliver(t, delivered)
	require.Equal(t, enums.DeliveryStatusAccepted, h.deliveryStatus(t, view.ID))
	h.notifier.reset()

	canceled, err := h.svc.Cancel(ctx, CancelInput{
		DeliveryID:  view.ID,
		Actor:       h.staff,
		Reason:      "vehicle broke down",
		EvidenceURL: evidence,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusCanceled, canceled.Status)
	require.Equal(t, enums.OrderStatusDelivered, h.orderStatus(t, delivered))
	require.Equal(t, enums.OrderStatusCanceled, h.orderStatus(t, second))
	require.Equal(t, enums.OrderStatusCanceled, h.orderStatus(t, third))

	reqs := h.notifier.snapshot()
	require.Len(t, reqs, 3)
	var staffNotices int
	for _, req := range reqs {
		if req.UserID == h.staff.ID {
			staffNotices++
			require.NotNil(t, req.DeliveryID)
		}
	}
	require.Equal(t, 1, staffNotices)

	history, err := h.orders.History(ctx, h.staff, second)
	require.NoError(t, err)
	last := history[len(history)-1]
	require.Equal(t, enums.CancelReasonDeliveryCanceled, *last.ReasonType)
	require.Equal(t, "vehicle broke down", *last.Reason)
}

func TestCancel_PendingReleasesOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.receivedOrder(t, "C1", "101")
	view := h.create(t, order)

	_, err := h.svc.Cancel(ctx, CancelInput{DeliveryID: view.ID, Actor: h.staff, Reason: "no"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Cancel(ctx, CancelInput{DeliveryID: view.ID, Actor: h.staff, Reason: "rain", EvidenceURL: evidence})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusReceivedExternal, h.orderStatus(t, order))

	var stored models.Order
	require.NoError(t, h.client.DB().First(&stored, "id = ?", order).Error)
	require.Nil(t, stored.ShipperID)

	// released orders can join a new delivery
	h.create(t, order)

	_, err = h.svc.Cancel(ctx, CancelInput{DeliveryID: view.ID, Actor: h.staff, Reason: "rain", EvidenceURL: evidence})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestFinish_RequiresNoOrderInTransport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.receivedOrder(t, "C1", "101")
	second := h.receivedOrder(t, "C2", "102")
	view := h.create(t, first, second)

	_, err := h.svc.Finish(ctx, ActionInput{DeliveryID: view.ID, Actor: h.staff})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = h.svc.Accept(ctx, ActionInput{DeliveryID: view.ID, Actor: h.staff})
	require.NoError(t, err)
	h.deliver(t, first)

	_, err = h.svc.Finish(ctx, ActionInput{DeliveryID: view.ID, Actor: h.staff})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestSettler_FinishesWhenEveryOrderIsDone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.receivedOrder(t, "C1", "101")
	second := h.receivedOrder(t, "C2", "102")
	view := h.create(t, first, second)
	_, err := h.svc.Accept(ctx, ActionInput{DeliveryID: view.ID, Actor: h.staff})
	require.NoError(t, err)

	h.deliver(t, first)
	require.Equal(t, enums.DeliveryStatusAccepted, h.deliveryStatus(t, view.ID))

	_, err = h.orders.Cancel(ctx, orders.CancelInput{
		OrderID:     second,
		Actor:       h.staff,
		ReasonType:  enums.CancelReasonExternal,
		Reason:      "lost by carrier",
		EvidenceURL: evidence,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusFinished, h.deliveryStatus(t, view.ID))
}

func TestSettler_CancelsWhenEveryOrderIsCanceled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.receivedOrder(t, "C1", "101")
	view := h.create(t, order)

	_, err := h.orders.Cancel(ctx, orders.CancelInput{
		OrderID:     order,
		Actor:       h.staff,
		ReasonType:  enums.CancelReasonStaffFault,
		Reason:      "damaged",
		EvidenceURL: evidence,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusCanceled, h.deliveryStatus(t, view.ID))

	history, err := h.svc.History(ctx, h.staff, view.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, autoCancelReason, *history[1].Reason)
}

func TestLocks_DeliveryBeforeOrderOnBothPaths(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.receivedOrder(t, "C1", "101")
	second := h.receivedOrder(t, "C2", "102")
	view := h.create(t, first, second)
	_, err := h.svc.Accept(ctx, ActionInput{DeliveryID: view.ID, Actor: h.staff})
	require.NoError(t, err)

	h.locks.reset()
	_, err = h.orders.Cancel(ctx, orders.CancelInput{
		OrderID:     first,
		Actor:       h.staff,
		ReasonType:  enums.CancelReasonExternal,
		Reason:      "lost by carrier",
		EvidenceURL: evidence,
	})
	require.NoError(t, err)
	taken := h.locks.snapshot()
	require.GreaterOrEqual(t, len(taken), 2)
	require.Equal(t, "delivery:"+view.ID.String(), taken[0])
	require.Equal(t, "order:"+first.String(), taken[1])

	h.locks.reset()
	_, err = h.svc.Cancel(ctx, CancelInput{
		DeliveryID:  view.ID,
		Actor:       h.staff,
		Reason:      "vehicle broke down",
		EvidenceURL: evidence,
	})
	require.NoError(t, err)
	taken = h.locks.snapshot()
	require.GreaterOrEqual(t, len(taken), 2)
	require.Equal(t, "delivery:"+view.ID.String(), taken[0])
	require.Contains(t, taken, "order:"+second.String())
}

func TestUpdate_ReplacesOrdersWhilePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.receivedOrder(t, "C1", "101")
	second := h.receivedOrder(t, "C2", "102")
	view := h.create(t, first)

	limit := time.Date(2026, 10, 20, 20, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{second}
	updated, err := h.svc.Update(ctx, UpdateInput{DeliveryID: view.ID, Actor: h.staff, OrderIDs: &ids, TimeLimit: &limit})
	require.NoError(t, err)
	require.Len(t, updated.Orders, 1)
	require.Equal(t, second, updated.Orders[0].OrderID)
	require.True(t, limit.Equal(*updated.TimeLimit))

	var removed models.Order
	require.NoError(t, h.client.DB().First(&removed, "id = ?", first).Error)
	require.Nil(t, removed.ShipperID)

	_, err = h.svc.Accept(ctx, ActionInput{DeliveryID: view.ID, Actor: h.staff})
	require.NoError(t, err)
	_, err = h.svc.Update(ctx, UpdateInput{DeliveryID: view.ID, Actor: h.staff, TimeLimit: &limit})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestDelete_RemovesPendingDeliveryAndHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.receivedOrder(t, "C1", "101")
	view := h.create(t, order)

	require.NoError(t, h.svc.Delete(ctx, ActionInput{DeliveryID: view.ID, Actor: h.admin}))

	_, err := h.svc.Get(ctx, h.admin, view.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
	var rows int64
	require.NoError(t, h.client.DB().Model(&models.DeliveryStatusHistory{}).Where("delivery_id = ?", view.ID).Count(&rows).Error)
	require.Zero(t, rows)

	accepted := h.create(t, order)
	_, err = h.svc.Accept(ctx, ActionInput{DeliveryID: accepted.ID, Actor: h.staff})
	require.NoError(t, err)
	err = h.svc.Delete(ctx, ActionInput{DeliveryID: accepted.ID, Actor: h.staff})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestSuggest_SendsOnlyUnassignedReceivedOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	free := h.receivedOrder(t, "C1", "101")
	taken := h.receivedOrder(t, "C2", "102")
	h.create(t, taken)

	_, err := h.svc.Suggest(ctx, SuggestInput{Actor: h.staff, Dormitory: "A"})
	requireCode(t, err, pkgerrors.CodeValidation)

	res, err := h.svc.Suggest(ctx, SuggestInput{
		Actor:     h.staff,
		Dormitory: "A",
		TimeSlot:  "18:00",
		MaxWeight: decimal.NewFromInt(10),
		Mode:      enums.GroupingModeRoom,
	})
	require.NoError(t, err)
	require.Len(t, h.grouper.groupReq.Orders, 1)
	require.Equal(t, free, h.grouper.groupReq.Orders[0].ID)
	require.Equal(t, "101", h.grouper.groupReq.Orders[0].Room)
	require.Len(t, res.Deliveries, 1)
}

func TestRoute_ResequencesOrders(t *testing.T) {
	h := newHarness(t)
	first := h.receivedOrder(t, "C1", "101")
	second := h.receivedOrder(t, "C2", "102")
	third := h.receivedOrder(t, "C3", "103")
	view := h.create(t, first, second, third)

	// the router returns only the last two, reversed
	h.grouper.route = func(stops []grouping.Stop) []grouping.Stop {
		return []grouping.Stop{stops[2], stops[1]}
	}
	routed, err := h.svc.Route(context.Background(), ActionInput{DeliveryID: view.ID, Actor: h.staff})
	require.NoError(t, err)
	got := make([]uuid.UUID, 0, len(routed.Orders))
	for _, o := range routed.Orders {
		got = append(got, o.OrderID)
	}
	require.Equal(t, []uuid.UUID{third, second, first}, got)

	h.grouper.route = func([]grouping.Stop) []grouping.Stop {
		return []grouping.Stop{{ID: uuid.New()}}
	}
	_, err = h.svc.Route(context.Background(), ActionInput{DeliveryID: view.ID, Actor: h.staff})
	requireCode(t, err, pkgerrors.CodeDependency)
}

func TestNewDisplayID(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id := NewDisplayID(now)
		require.Regexp(t, `^DL-261015-[0-9A-F]{6}$`, id)
		seen[id] = struct{}{}
	}
	require.Greater(t, len(seen), 1, fmt.Sprintf("ids did not vary: %v", seen))
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
