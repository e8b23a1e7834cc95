package orders

import "github.com/angelmondragon/dormship-backend/pkg/enums"

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusAccepted,
		enums.OrderStatusRejected,
		enums.OrderStatusCanceled,
	},
	enums.OrderStatusAccepted: {
		enums.OrderStatusReceivedExternal,
		enums.OrderStatusCanceled,
	},
	enums.OrderStatusReceivedExternal: {
		enums.OrderStatusInTransport,
		enums.OrderStatusCanceled,
	},
	enums.OrderStatusInTransport: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCanceled,
	},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
