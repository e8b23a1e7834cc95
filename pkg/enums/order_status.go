package enums

// OrderStatus is one row of the order status ledger.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "PENDING"
	OrderStatusAccepted         OrderStatus = "ACCEPTED"
	OrderStatusRejected         OrderStatus = "REJECTED"
	OrderStatusReceivedExternal OrderStatus = "RECEIVED_EXTERNAL"
	OrderStatusInTransport      OrderStatus = "IN_TRANSPORT"
	OrderStatusDelivered        OrderStatus = "DELIVERED"
	OrderStatusCanceled         OrderStatus = "CANCELED"
)

var orderStatuses = set[OrderStatus]{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusRejected,
	OrderStatusReceivedExternal,
	OrderStatusInTransport,
	OrderStatusDelivered,
	OrderStatusCanceled,
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	return orderStatuses.has(o)
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse("order status", value)
}

// IsTerminal reports whether no further transitions are possible.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusDelivered, OrderStatusRejected, OrderStatusCanceled:
		return true
	}
	return false
}
