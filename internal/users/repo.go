// Package users reads and updates the accounts the lifecycle acts on. Users
// are created elsewhere; this package never inserts them.
package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) load(ctx context.Context, id uuid.UUID, lock bool) (*models.User, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	u := new(models.User)
	if err := q.Where("id = ?", id).Take(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.load(ctx, id, false)
}

// LockByID holds the user's row until the transaction ends, serializing
// concurrent accepts by the same staff member.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.load(ctx, id, true)
}

// Locales maps each known id to its preferred locale. Unknown ids are
// absent from the result.
func (r *Repository) Locales(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var pairs []struct {
		ID     uuid.UUID
		Locale string
	}
	if err := r.db.WithContext(ctx).Model(&models.User{}).Select("id", "locale").Where("id IN ?", ids).Scan(&pairs).Error; err != nil {
		return nil, err
	}
	for _, p := range pairs {
		out[p.ID] = p.Locale
	}
	return out, nil
}

// UpdateStatus sets the account status. A missing user is
// gorm.ErrRecordNotFound.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.AccountStatus) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("status", status)
	if res.Error == nil && res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return res.Error
}
