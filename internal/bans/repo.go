package bans

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
)

// Repository persists student fault counters and dormitory regulations.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a bans repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// LockStudent loads a student row FOR UPDATE.
func (r *Repository) LockStudent(ctx context.Context, userID uuid.UUID) (*models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&student, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *Repository) FindStudent(ctx context.Context, userID uuid.UUID) (*models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *Repository) UpdateFaults(ctx context.Context, userID uuid.UUID, count int) error {
	return r.db.WithContext(ctx).
		Model(&models.Student{}).
		Where("user_id = ?", userID).
		Update("number_fault", count).Error
}

// FindRegulation returns nil without error when the dormitory has no override.
func (r *Repository) FindRegulation(ctx context.Context, dormitory string) (*models.DormitoryRegulation, error) {
	var reg models.DormitoryRegulation
	err := r.db.WithContext(ctx).First(&reg, "dormitory = ?", dormitory).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Repository) UpsertRegulation(ctx context.Context, reg *models.DormitoryRegulation) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dormitory"}},
			DoUpdates: clause.AssignmentColumns([]string{"ban_threshold", "time_slots", "updated_at"}),
		}).
		Create(reg).Error
}
