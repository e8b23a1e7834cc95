package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

// Order is a single parcel shipment. Its status lives in order_status_histories.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	StudentID       *uuid.UUID          `gorm:"column:student_id;type:uuid;index"`
	ShipperID       *uuid.UUID          `gorm:"column:shipper_id;type:uuid;index"`
	CheckCode       string              `gorm:"column:check_code;type:text;not null;uniqueIndex:ux_orders_check_code_brand"`
	Brand           string              `gorm:"column:brand;type:text;not null;uniqueIndex:ux_orders_check_code_brand"`
	Weight          decimal.Decimal     `gorm:"column:weight;type:numeric(10,3);not null"`
	ShippingFee     int64               `gorm:"column:shipping_fee;not null"`
	RemainingAmount int64               `gorm:"column:remaining_amount;not null"`
	IsPaid          bool                `gorm:"column:is_paid;not null"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	DeliveryDate    *time.Time          `gorm:"column:delivery_date"`
	TimeSlot        *string             `gorm:"column:time_slot;type:text"`
	Dormitory       *string             `gorm:"column:dormitory;type:text"`
	Building        *string             `gorm:"column:building;type:text"`
	Room            *string             `gorm:"column:room;type:text"`
	Phone           *string             `gorm:"column:phone;type:text"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Unclaimed reports whether the order was pre-registered without any
// student, schedule or address attached.
func (o Order) Unclaimed() bool {
	return o.StudentID == nil && o.DeliveryDate == nil && o.Dormitory == nil
}

// OrderStatusHistory is one immutable ledger row.
type OrderStatusHistory struct {
	ID          int64                   `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index:ix_order_status_histories_latest,priority:1"`
	Status      enums.OrderStatus       `gorm:"column:status;type:text;not null"`
	Timestamp   int64                   `gorm:"column:timestamp_ms;not null;index:ix_order_status_histories_latest,priority:2"`
	Reason      *string                 `gorm:"column:reason;type:text"`
	ReasonType  *enums.CancelReasonType `gorm:"column:reason_type;type:text"`
	EvidenceURL *string                 `gorm:"column:evidence_url;type:text"`
	ActorID     *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}
