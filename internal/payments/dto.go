package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/payos"
)

// CreatePaymentInput opens a bank transfer attempt. A nil Amount pays the
// whole remaining balance.
type CreatePaymentInput struct {
	Actor   orders.Actor
	OrderID uuid.UUID
	Amount  *int64
}

// Checkout is returned to the payer to complete the transfer.
type Checkout struct {
	PaymentID uuid.UUID            `json:"paymentId"`
	OrderID   uuid.UUID            `json:"orderId"`
	OrderCode int64                `json:"orderCode"`
	Amount    int64                `json:"amount"`
	Request   payos.PaymentRequest `json:"request"`
}

// PaymentView is a payment as shown on an order.
type PaymentView struct {
	ID                     uuid.UUID  `json:"id"`
	OrderID                uuid.UUID  `json:"orderId"`
	OrderCode              int64      `json:"orderCode"`
	Amount                 int64      `json:"amount"`
	IsPaid                 bool       `json:"isPaid"`
	CounterAccountName     *string    `json:"counterAccountName,omitempty"`
	CounterAccountNumber   *string    `json:"counterAccountNumber,omitempty"`
	CounterAccountBankName *string    `json:"counterAccountBankName,omitempty"`
	PaidAt                 *time.Time `json:"paidAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
}

// ReconciledEvent is the outbox payload for a settled payment.
type ReconciledEvent struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	OrderCode int64     `json:"order_code"`
	Amount    int64     `json:"amount"`
	Remaining int64     `json:"remaining_amount"`
	IsPaid    bool      `json:"is_paid"`
}

func newPaymentView(p models.Payment) PaymentView {
	return PaymentView{
		ID:                     p.ID,
		OrderID:                p.OrderID,
		OrderCode:              p.OrderCode,
		Amount:                 p.Amount,
		IsPaid:                 p.IsPaid,
		CounterAccountName:     p.CounterAccountName,
		CounterAccountNumber:   p.CounterAccountNumber,
		CounterAccountBankName: p.CounterAccountBankName,
		PaidAt:                 p.PaidAt,
		CreatedAt:              p.CreatedAt,
	}
}
