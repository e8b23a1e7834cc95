package enums

// OutboxEventType names the events written to outbox_events.
type OutboxEventType string

const (
	EventNotificationCreated   OutboxEventType = "notification_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventDeliveryStatusChanged OutboxEventType = "delivery_status_changed"
	EventPaymentReconciled     OutboxEventType = "payment_reconciled"
)

var outboxEventTypes = set[OutboxEventType]{
	EventNotificationCreated,
	EventOrderStatusChanged,
	EventDeliveryStatusChanged,
	EventPaymentReconciled,
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	return outboxEventTypes.has(o)
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse("event type", value)
}

// OutboxAggregateType identifies the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateDelivery     OutboxAggregateType = "delivery"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateNotification OutboxAggregateType = "notification"
)

var aggregateTypes = set[OutboxAggregateType]{
	AggregateOrder,
	AggregateDelivery,
	AggregatePayment,
	AggregateNotification,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return aggregateTypes.has(a)
}
