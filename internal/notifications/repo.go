package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/pagination"
)

// Repository is the inbox table. Every read and write is scoped to one
// owner except retention.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, n *models.Notification) error
	Page(ctx context.Context, q inboxQuery) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type inboxQuery struct {
	owner      uuid.UUID
	limit      int
	after      *pagination.Cursor
	unreadOnly bool
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return gormRepository{db: db}
}

func (r gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return gormRepository{db: tx}
}

func (r gormRepository) owned(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r gormRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// Page returns one newest-first page plus the cursor of the next, if any.
func (r gormRepository) Page(ctx context.Context, q inboxQuery) ([]models.Notification, *pagination.Cursor, error) {
	tx := r.owned(ctx, q.owner)
	if q.unreadOnly {
		tx = tx.Where("read_at IS NULL")
	}
	if c := q.after; c != nil {
		tx = tx.Where("(created_at < ?) OR (created_at = ? AND id <= ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
	var rows []models.Notification
	err := tx.Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(q.limit)).Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r gormRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.owned(ctx, userID).Where("read_at IS NULL").Count(&n).Error
	return n, err
}

// MarkRead stamps read_at once. Marking an already-read row succeeds; a row
// the user does not own is gorm.ErrRecordNotFound.
func (r gormRepository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	res := r.owned(ctx, userID).Where("id = ? AND read_at IS NULL", id).UpdateColumn("read_at", at)
	if res.Error != nil || res.RowsAffected > 0 {
		return res.Error
	}
	var seen []uuid.UUID
	if err := r.owned(ctx, userID).Where("id = ?", id).Limit(1).Pluck("id", &seen).Error; err != nil {
		return err
	}
	if len(seen) == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r gormRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.owned(ctx, userID).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore prunes read rows created before cutoff. Unread rows are
// kept regardless of age.
func (r gormRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
