package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification stores in-app notifications addressed to a single user.
type Notification struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	Title      string     `gorm:"column:title;type:text;not null"`
	Message    string     `gorm:"column:message;type:text;not null"`
	OrderID    *uuid.UUID `gorm:"column:order_id;type:uuid"`
	DeliveryID *uuid.UUID `gorm:"column:delivery_id;type:uuid"`
	ReportID   *uuid.UUID `gorm:"column:report_id;type:uuid"`
	ReadAt     *time.Time `gorm:"column:read_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
