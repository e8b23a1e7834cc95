package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID   uuid.UUID
	Role enums.UserRole
}

// CreateInput describes a new or claimed parcel.
type CreateInput struct {
	Actor         Actor
	CheckCode     string
	Brand         string
	Weight        decimal.Decimal
	PaymentMethod enums.PaymentMethod
	DeliveryDate  *time.Time
	TimeSlot      *string
	Dormitory     *string
	Building      *string
	Room          *string
	Phone         *string
}

// CreateResult is returned by Create. Merged is set when the submission
// claimed a pre-registered parcel instead of inserting a new one.
type CreateResult struct {
	Order  OrderView `json:"order"`
	Merged bool      `json:"merged"`
}

// TransitionInput requests one status change.
type TransitionInput struct {
	OrderID     uuid.UUID
	Actor       Actor
	Status      enums.OrderStatus
	Reason      *string
	ReasonType  *enums.CancelReasonType
	EvidenceURL *string
}

// CancelInput requests a cancellation. Reason, type and evidence are all
// required.
type CancelInput struct {
	OrderID     uuid.UUID
	Actor       Actor
	ReasonType  enums.CancelReasonType
	Reason      string
	EvidenceURL string
}

// DelayInput reschedules a set of orders together.
type DelayInput struct {
	Actor        Actor
	OrderIDs     []uuid.UUID
	DeliveryDate time.Time
	TimeSlot     string
}

// OrderView is an order together with its derived current status.
type OrderView struct {
	ID              uuid.UUID           `json:"id"`
	StudentID       *uuid.UUID          `json:"studentId,omitempty"`
	ShipperID       *uuid.UUID          `json:"shipperId,omitempty"`
	CheckCode       string              `json:"checkCode"`
	Brand           string              `json:"brand"`
	Weight          decimal.Decimal     `json:"weight"`
	ShippingFee     int64               `json:"shippingFee"`
	RemainingAmount int64               `json:"remainingAmount"`
	IsPaid          bool                `json:"isPaid"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod"`
	DeliveryDate    *time.Time          `json:"deliveryDate,omitempty"`
	TimeSlot        *string             `json:"timeSlot,omitempty"`
	Dormitory       *string             `json:"dormitory,omitempty"`
	Building        *string             `json:"building,omitempty"`
	Room            *string             `json:"room,omitempty"`
	Phone           *string             `json:"phone,omitempty"`
	Status          enums.OrderStatus   `json:"status"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// StatusChangedEvent is the outbox payload for every order transition.
type StatusChangedEvent struct {
	OrderID    uuid.UUID               `json:"order_id"`
	StudentID  *uuid.UUID              `json:"student_id,omitempty"`
	Status     enums.OrderStatus       `json:"status"`
	Previous   *enums.OrderStatus      `json:"previous,omitempty"`
	ReasonType *enums.CancelReasonType `json:"reason_type,omitempty"`
	IsPaid     bool                    `json:"is_paid"`
	Remaining  int64                   `json:"remaining_amount"`
}

func newOrderView(order models.Order, status enums.OrderStatus) OrderView {
	return OrderView{
		ID:              order.ID,
		StudentID:       order.StudentID,
		ShipperID:       order.ShipperID,
		CheckCode:       order.CheckCode,
		Brand:           order.Brand,
		Weight:          order.Weight,
		ShippingFee:     order.ShippingFee,
		RemainingAmount: order.RemainingAmount,
		IsPaid:          order.IsPaid,
		PaymentMethod:   order.PaymentMethod,
		DeliveryDate:    order.DeliveryDate,
		TimeSlot:        order.TimeSlot,
		Dormitory:       order.Dormitory,
		Building:        order.Building,
		Room:            order.Room,
		Phone:           order.Phone,
		Status:          status,
		CreatedAt:       order.CreatedAt,
	}
}
