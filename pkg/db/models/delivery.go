package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

// Delivery is a batch run of orders assigned to one staff member.
type Delivery struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	DisplayID string     `gorm:"column:display_id;type:text;not null;uniqueIndex:ux_deliveries_display_id"`
	StaffID   uuid.UUID  `gorm:"column:staff_id;type:uuid;not null;index"`
	TimeLimit *time.Time `gorm:"column:time_limit"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Delivery) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DeliveryOrder links an order to a delivery at a fixed position.
type DeliveryOrder struct {
	DeliveryID    uuid.UUID `gorm:"column:delivery_id;type:uuid;primaryKey"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey;index"`
	OrderSequence int       `gorm:"column:order_sequence;not null"`
}

// DeliveryStatusHistory is one immutable delivery ledger row.
type DeliveryStatusHistory struct {
	ID          int64                `gorm:"column:id;primaryKey;autoIncrement"`
	DeliveryID  uuid.UUID            `gorm:"column:delivery_id;type:uuid;not null;index:ix_delivery_status_histories_latest,priority:1"`
	Status      enums.DeliveryStatus `gorm:"column:status;type:text;not null"`
	Timestamp   int64                `gorm:"column:timestamp_ms;not null;index:ix_delivery_status_histories_latest,priority:2"`
	Reason      *string              `gorm:"column:reason;type:text"`
	EvidenceURL *string              `gorm:"column:evidence_url;type:text"`
	ActorID     *uuid.UUID           `gorm:"column:actor_id;type:uuid"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
}
