package enums

// CancelReasonType attributes an order cancellation to a party.
type CancelReasonType string

const (
	CancelReasonStudentFault     CancelReasonType = "STUDENT_FAULT"
	CancelReasonStaffFault       CancelReasonType = "STAFF_FAULT"
	CancelReasonExternal         CancelReasonType = "EXTERNAL"
	CancelReasonDeliveryCanceled CancelReasonType = "DELIVERY_CANCELED"
)

var cancelReasonTypes = set[CancelReasonType]{
	CancelReasonStudentFault,
	CancelReasonStaffFault,
	CancelReasonExternal,
	CancelReasonDeliveryCanceled,
}

// IsValid reports whether the value is a known CancelReasonType.
func (c CancelReasonType) IsValid() bool {
	return cancelReasonTypes.has(c)
}

// ParseCancelReasonType converts raw input into a CancelReasonType.
func ParseCancelReasonType(value string) (CancelReasonType, error) {
	return cancelReasonTypes.parse("cancel reason type", value)
}
