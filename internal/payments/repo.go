package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
)

// Repository persists gateway payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	LockByOrderCode(ctx context.Context, orderCode int64) (*models.Payment, error)
	MarkPaid(ctx context.Context, id uuid.UUID, details PaidDetails) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

// PaidDetails is the audit trail attached when a payment settles.
type PaidDetails struct {
	CounterAccountName     *string
	CounterAccountNumber   *string
	CounterAccountBankName *string
	Reference              *string
	PaidAt                 time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) LockByOrderCode(ctx context.Context, orderCode int64) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, "order_code = ?", orderCode).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaid flips is_paid from false to true and reports whether this call
// made the change. A replayed webhook sees false.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, details PaidDetails) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(map[string]any{
			"is_paid":                   true,
			"counter_account_name":      details.CounterAccountName,
			"counter_account_number":    details.CounterAccountNumber,
			"counter_account_bank_name": details.CounterAccountBankName,
			"reference":                 details.Reference,
			"paid_at":                   details.PaidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
