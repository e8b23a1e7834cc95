package enums

// DeliveryStatus is one row of the delivery status ledger.
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "PENDING"
	DeliveryStatusAccepted DeliveryStatus = "ACCEPTED"
	DeliveryStatusFinished DeliveryStatus = "FINISHED"
	DeliveryStatusCanceled DeliveryStatus = "CANCELED"
)

var deliveryStatuses = set[DeliveryStatus]{
	DeliveryStatusPending,
	DeliveryStatusAccepted,
	DeliveryStatusFinished,
	DeliveryStatusCanceled,
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	return deliveryStatuses.has(d)
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	return deliveryStatuses.parse("delivery status", value)
}

// IsTerminal reports whether no further transitions are possible.
func (d DeliveryStatus) IsTerminal() bool {
	return d == DeliveryStatusFinished || d == DeliveryStatusCanceled
}
