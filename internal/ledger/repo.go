package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
)

// Repository is the status history ledger. Rows are only ever appended; the
// current status of an order or delivery is always the latest row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	AppendOrder(ctx context.Context, entry OrderEntry) (*models.OrderStatusHistory, error)
	CurrentOrderStatus(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error)
	CurrentOrderStatuses(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]enums.OrderStatus, error)
	OrderHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)

	AppendDelivery(ctx context.Context, entry DeliveryEntry) (*models.DeliveryStatusHistory, error)
	CurrentDeliveryStatus(ctx context.Context, deliveryID uuid.UUID) (enums.DeliveryStatus, error)
	CurrentDeliveryStatuses(ctx context.Context, deliveryIDs []uuid.UUID) (map[uuid.UUID]enums.DeliveryStatus, error)
	DeliveryHistory(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryStatusHistory, error)
	DeleteDeliveryHistory(ctx context.Context, deliveryID uuid.UUID) error
}

// OrderEntry is the input for one order transition row.
type OrderEntry struct {
	OrderID     uuid.UUID
	Status      enums.OrderStatus
	Reason      *string
	ReasonType  *enums.CancelReasonType
	EvidenceURL *string
	ActorID     *uuid.UUID
}

// DeliveryEntry is the input for one delivery transition row.
type DeliveryEntry struct {
	DeliveryID  uuid.UUID
	Status      enums.DeliveryStatus
	Reason      *string
	EvidenceURL *string
	ActorID     *uuid.UUID
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a ledger bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

// NewRepositoryWithClock is NewRepository with an injected clock.
func NewRepositoryWithClock(db *gorm.DB, now func() time.Time) Repository {
	if now == nil {
		now = time.Now
	}
	return &repository{db: db, now: now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) AppendOrder(ctx context.Context, entry OrderEntry) (*models.OrderStatusHistory, error) {
	if entry.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !entry.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	stamp, err := r.nextStamp(ctx, "order_status_histories", "order_id", entry.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order history head")
	}
	row := &models.OrderStatusHistory{
		OrderID:     entry.OrderID,
		Status:      entry.Status,
		Timestamp:   stamp,
		Reason:      entry.Reason,
		ReasonType:  entry.ReasonType,
		EvidenceURL: entry.EvidenceURL,
		ActorID:     entry.ActorID,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	return row, nil
}

func (r *repository) AppendDelivery(ctx context.Context, entry DeliveryEntry) (*models.DeliveryStatusHistory, error) {
	if entry.DeliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}
	if !entry.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery status")
	}
	stamp, err := r.nextStamp(ctx, "delivery_status_histories", "delivery_id", entry.DeliveryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read delivery history head")
	}
	row := &models.DeliveryStatusHistory{
		DeliveryID:  entry.DeliveryID,
		Status:      entry.Status,
		Timestamp:   stamp,
		Reason:      entry.Reason,
		EvidenceURL: entry.EvidenceURL,
		ActorID:     entry.ActorID,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append delivery history")
	}
	return row, nil
}

// nextStamp is the local clock in unix ms, pushed past the entity's newest
// row so a writer with a lagging clock can never append behind it. Callers
// hold the entity's row lock.
func (r *repository) nextStamp(ctx context.Context, table, column string, id uuid.UUID) (int64, error) {
	var head int64
	err := r.db.WithContext(ctx).
		Table(table).
		Select("COALESCE(MAX(timestamp_ms), 0)").
		Where(column+" = ?", id).
		Scan(&head).Error
	if err != nil {
		return 0, err
	}
	return max(r.now().UnixMilli(), head+1), nil
}

func (r *repository) CurrentOrderStatus(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	statuses, err := r.CurrentOrderStatuses(ctx, []uuid.UUID{orderID})
	if err != nil {
		return "", err
	}
	status, ok := statuses[orderID]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "order history not found")
	}
	return status, nil
}

func (r *repository) CurrentOrderStatuses(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]enums.OrderStatus, error) {
	rows, err := latestRows(ctx, r.db, "order_status_histories", "order_id", orderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current order status")
	}
	out := make(map[uuid.UUID]enums.OrderStatus, len(rows))
	for _, row := range rows {
		out[row.EntityID] = enums.OrderStatus(row.Status)
	}
	return out, nil
}

func (r *repository) CurrentDeliveryStatus(ctx context.Context, deliveryID uuid.UUID) (enums.DeliveryStatus, error) {
	statuses, err := r.CurrentDeliveryStatuses(ctx, []uuid.UUID{deliveryID})
	if err != nil {
		return "", err
	}
	status, ok := statuses[deliveryID]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "delivery history not found")
	}
	return status, nil
}

func (r *repository) CurrentDeliveryStatuses(ctx context.Context, deliveryIDs []uuid.UUID) (map[uuid.UUID]enums.DeliveryStatus, error) {
	rows, err := latestRows(ctx, r.db, "delivery_status_histories", "delivery_id", deliveryIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current delivery status")
	}
	out := make(map[uuid.UUID]enums.DeliveryStatus, len(rows))
	for _, row := range rows {
		out[row.EntityID] = enums.DeliveryStatus(row.Status)
	}
	return out, nil
}

func (r *repository) OrderHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var rows []models.OrderStatusHistory
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("timestamp_ms ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order history")
	}
	return rows, nil
}

func (r *repository) DeliveryHistory(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryStatusHistory, error) {
	var rows []models.DeliveryStatusHistory
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("timestamp_ms ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivery history")
	}
	return rows, nil
}

// DeleteDeliveryHistory removes a delivery's rows. Only deleting a delivery
// that never left PENDING may call it.
func (r *repository) DeleteDeliveryHistory(ctx context.Context, deliveryID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Delete(&models.DeliveryStatusHistory{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete delivery history")
	}
	return nil
}
