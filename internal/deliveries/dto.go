package deliveries

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dormship-backend/internal/orders"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

// CreateInput builds a delivery from externally received orders. StaffID
// defaults to the actor when a staff member creates their own run.
type CreateInput struct {
	Actor     orders.Actor
	StaffID   uuid.UUID
	OrderIDs  []uuid.UUID
	TimeLimit *time.Time
}

// ActionInput targets one delivery.
type ActionInput struct {
	DeliveryID uuid.UUID
	Actor      orders.Actor
}

// CancelInput cancels a delivery. ReasonType is forwarded to every cascaded
// order cancellation and defaults to DELIVERY_CANCELED.
type CancelInput struct {
	DeliveryID  uuid.UUID
	Actor       orders.Actor
	Reason      string
	EvidenceURL string
	ReasonType  enums.CancelReasonType
}

// UpdateInput changes a pending delivery. Nil fields are left untouched.
type UpdateInput struct {
	DeliveryID uuid.UUID
	Actor      orders.Actor
	OrderIDs   *[]uuid.UUID
	TimeLimit  *time.Time
}

// SuggestInput asks the grouping service for candidate deliveries.
type SuggestInput struct {
	Actor        orders.Actor
	Dormitory    string
	TimeSlot     string
	DeliveryDate *time.Time
	MaxWeight    decimal.Decimal
	Mode         enums.GroupingMode
}

// DeliveryView is a delivery with its derived status and ordered contents.
type DeliveryView struct {
	ID        uuid.UUID            `json:"id"`
	DisplayID string               `json:"displayId"`
	StaffID   uuid.UUID            `json:"staffId"`
	TimeLimit *time.Time           `json:"timeLimit,omitempty"`
	Status    enums.DeliveryStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
	Orders    []DeliveryOrderView  `json:"orders"`
}

// DeliveryOrderView is one order inside a delivery.
type DeliveryOrderView struct {
	OrderID  uuid.UUID         `json:"orderId"`
	Sequence int               `json:"orderSequence"`
	Status   enums.OrderStatus `json:"status"`
}

// StatusChangedEvent is the outbox payload for delivery transitions.
type StatusChangedEvent struct {
	DeliveryID uuid.UUID             `json:"delivery_id"`
	DisplayID  string                `json:"display_id"`
	StaffID    uuid.UUID             `json:"staff_id"`
	Status     enums.DeliveryStatus  `json:"status"`
	Previous   *enums.DeliveryStatus `json:"previous,omitempty"`
}

func newDeliveryView(d models.Delivery, status enums.DeliveryStatus, links []models.DeliveryOrder, statuses map[uuid.UUID]enums.OrderStatus) DeliveryView {
	view := DeliveryView{
		ID:        d.ID,
		DisplayID: d.DisplayID,
		StaffID:   d.StaffID,
		TimeLimit: d.TimeLimit,
		Status:    status,
		CreatedAt: d.CreatedAt,
		Orders:    make([]DeliveryOrderView, 0, len(links)),
	}
	for _, link := range links {
		view.Orders = append(view.Orders, DeliveryOrderView{
			OrderID:  link.OrderID,
			Sequence: link.OrderSequence,
			Status:   statuses[link.OrderID],
		})
	}
	return view
}
