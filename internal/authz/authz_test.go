package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
)

func TestCheck(t *testing.T) {
	require.NoError(t, Check(OpAcceptDelivery, enums.UserRoleStaff))
	require.NoError(t, Check(OpUnbanStudent, enums.UserRoleAdmin))

	err := Check(OpAcceptDelivery, enums.UserRoleStudent)
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.Error(t, Check(OpDeliverOrder, enums.UserRoleStudent))
	require.Error(t, Check(OpCreateOrder, "GUEST"))
}

func TestEveryOperationHasRoles(t *testing.T) {
	for op, roles := range operationRoles {
		assert.NotEmpty(t, roles, "operation %s has no roles", op)
	}
}

func TestCancelMatrix(t *testing.T) {
	cases := []struct {
		role    enums.UserRole
		current enums.OrderStatus
		allowed bool
	}{
		{enums.UserRoleStudent, enums.OrderStatusPending, true},
		{enums.UserRoleStudent, enums.OrderStatusAccepted, true},
		{enums.UserRoleStudent, enums.OrderStatusReceivedExternal, false},
		{enums.UserRoleStudent, enums.OrderStatusInTransport, false},
		{enums.UserRoleStaff, enums.OrderStatusInTransport, true},
		{enums.UserRoleAdmin, enums.OrderStatusReceivedExternal, true},
		{enums.UserRoleStaff, enums.OrderStatusDelivered, false},
		{enums.UserRoleAdmin, enums.OrderStatusCanceled, false},
		{enums.UserRoleAdmin, enums.OrderStatusRejected, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanCancelOrder(tc.role, tc.current), "%s from %s", tc.role, tc.current)
	}
}

func TestOperationForOrderStatus(t *testing.T) {
	op, ok := OperationForOrderStatus(enums.OrderStatusDelivered)
	require.True(t, ok)
	require.Equal(t, OpDeliverOrder, op)

	_, ok = OperationForOrderStatus(enums.OrderStatusPending)
	require.False(t, ok)
}
