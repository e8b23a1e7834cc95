package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

// User represents the canonical identity entity.
type User struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Email     string              `gorm:"column:email;not null;uniqueIndex"`
	Name      string              `gorm:"column:name;not null"`
	Phone     *string             `gorm:"column:phone"`
	Role      enums.UserRole      `gorm:"column:role;type:text;not null"`
	Status    enums.AccountStatus `gorm:"column:status;type:text;not null"`
	Locale    string              `gorm:"column:locale;type:text;not null"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = enums.AccountStatusActive
	}
	return nil
}
