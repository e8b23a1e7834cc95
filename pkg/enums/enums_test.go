package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIsExact(t *testing.T) {
	status, err := ParseOrderStatus("IN_TRANSPORT")
	require.NoError(t, err)
	require.Equal(t, OrderStatusInTransport, status)

	_, err = ParseOrderStatus("in_transport")
	require.EqualError(t, err, `invalid order status "in_transport"`)

	_, err = ParseCancelReasonType("")
	require.Error(t, err)
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range orderStatuses {
		want := s == OrderStatusDelivered || s == OrderStatusRejected || s == OrderStatusCanceled
		require.Equal(t, want, s.IsTerminal(), s)
	}
	require.True(t, DeliveryStatusFinished.IsTerminal())
	require.False(t, DeliveryStatusAccepted.IsTerminal())
}

func TestIsValid(t *testing.T) {
	require.True(t, UserRoleStaff.IsValid())
	require.False(t, UserRole("OWNER").IsValid())
	require.True(t, AggregateNotification.IsValid())
	require.True(t, EventPaymentReconciled.IsValid())
	require.False(t, PaymentMethod("CARD").IsValid())
}
