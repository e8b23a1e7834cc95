package notifications

import (
	"context"

	"github.com/google/uuid"
)

// Request asks for one user to be told about something. Delivery is best
// effort; callers never learn whether it succeeded.
type Request struct {
	UserID     uuid.UUID  `json:"userId"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	OrderID    *uuid.UUID `json:"orderId,omitempty"`
	DeliveryID *uuid.UUID `json:"deliveryId,omitempty"`
	ReportID   *uuid.UUID `json:"reportId,omitempty"`
}

// Notifier accepts fire-and-forget requests.
type Notifier interface {
	Notify(ctx context.Context, req Request)
}

// Sender performs a single delivery attempt.
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// NotifyAll hands every request to n. It exists so lifecycle services can
// flush what they collected once their transaction has committed.
func NotifyAll(ctx context.Context, n Notifier, reqs []Request) {
	if n == nil {
		return
	}
	for _, req := range reqs {
		n.Notify(ctx, req)
	}
}
