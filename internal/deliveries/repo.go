package deliveries

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
)

// Repository defines persistence operations for deliveries and their links.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, delivery *models.Delivery) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]models.Delivery, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	Links(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryOrder, error)
	LinksByOrder(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryOrder, error)
	ReplaceLinks(ctx context.Context, deliveryID uuid.UUID, orderIDs []uuid.UUID) error
	DeleteLinks(ctx context.Context, deliveryID uuid.UUID) error
	UpdateSequence(ctx context.Context, deliveryID, orderID uuid.UUID, sequence int) error
	CandidateOrders(ctx context.Context, dormitory, timeSlot string) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deliveries repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.db.WithContext(ctx).First(&delivery, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&delivery, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := r.db.WithContext(ctx).
		Where("staff_id = ?", staffID).
		Order("created_at ASC").
		Find(&deliveries).Error
	return deliveries, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Delivery{}, "id = ?", id).Error
}

// Links returns the delivery's orders in visiting order.
func (r *repository) Links(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryOrder, error) {
	var links []models.DeliveryOrder
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("order_sequence ASC").
		Find(&links).Error
	return links, err
}

func (r *repository) LinksByOrder(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryOrder, error) {
	var links []models.DeliveryOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&links).Error
	return links, err
}

// ReplaceLinks sequences orderIDs 1..N in the given order.
func (r *repository) ReplaceLinks(ctx context.Context, deliveryID uuid.UUID, orderIDs []uuid.UUID) error {
	if err := r.DeleteLinks(ctx, deliveryID); err != nil {
		return err
	}
	if len(orderIDs) == 0 {
		return nil
	}
	links := make([]models.DeliveryOrder, 0, len(orderIDs))
	for i, id := range orderIDs {
		links = append(links, models.DeliveryOrder{
			DeliveryID:    deliveryID,
			OrderID:       id,
			OrderSequence: i + 1,
		})
	}
	return r.db.WithContext(ctx).Create(&links).Error
}

func (r *repository) DeleteLinks(ctx context.Context, deliveryID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Delete(&models.DeliveryOrder{}).Error
}

func (r *repository) UpdateSequence(ctx context.Context, deliveryID, orderID uuid.UUID, sequence int) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryOrder{}).
		Where("delivery_id = ? AND order_id = ?", deliveryID, orderID).
		Update("order_sequence", sequence).Error
}

// CandidateOrders lists orders for a dormitory and slot regardless of status.
// Callers filter by the ledger.
func (r *repository) CandidateOrders(ctx context.Context, dormitory, timeSlot string) ([]models.Order, error) {
	var out []models.Order
	err := r.db.WithContext(ctx).
		Where("dormitory = ? AND time_slot = ?", dormitory, timeSlot).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
