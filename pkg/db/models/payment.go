package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Payment is one gateway transaction attempt against an order. Counter
// account fields are filled only by a verified webhook.
type Payment struct {
	ID                     uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	OrderCode              int64      `gorm:"column:order_code;not null;uniqueIndex:ux_payments_order_code"`
	Amount                 int64      `gorm:"column:amount;not null"`
	IsPaid                 bool       `gorm:"column:is_paid;not null"`
	CounterAccountName     *string    `gorm:"column:counter_account_name;type:text"`
	CounterAccountNumber   *string    `gorm:"column:counter_account_number;type:text"`
	CounterAccountBankName *string    `gorm:"column:counter_account_bank_name;type:text"`
	Reference              *string    `gorm:"column:reference;type:text"`
	PaidAt                 *time.Time `gorm:"column:paid_at"`
	CreatedAt              time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
