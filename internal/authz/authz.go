// Package authz holds the explicit permission tables every lifecycle
// operation checks before touching the store.
package authz

import (
	"fmt"

	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
)

// Operation names a guarded lifecycle operation.
type Operation string

const (
	OpCreateOrder       Operation = "order.create"
	OpViewOrder         Operation = "order.view"
	OpAcceptOrder       Operation = "order.accept"
	OpRejectOrder       Operation = "order.reject"
	OpReceiveOrder      Operation = "order.receive_external"
	OpTransportOrder    Operation = "order.in_transport"
	OpDeliverOrder      Operation = "order.deliver"
	OpCancelOrder       Operation = "order.cancel"
	OpDelayOrders       Operation = "order.delay"
	OpCreateDelivery    Operation = "delivery.create"
	OpViewDelivery      Operation = "delivery.view"
	OpAcceptDelivery    Operation = "delivery.accept"
	OpFinishDelivery    Operation = "delivery.finish"
	OpCancelDelivery    Operation = "delivery.cancel"
	OpUpdateDelivery    Operation = "delivery.update"
	OpDeleteDelivery    Operation = "delivery.delete"
	OpSuggestDeliveries Operation = "delivery.suggest"
	OpRouteDelivery     Operation = "delivery.route"
	OpCreatePayment     Operation = "payment.create"
	OpManageRegulation  Operation = "regulation.manage"
	OpUnbanStudent      Operation = "student.unban"
	OpReadNotifications Operation = "notification.read"
)

var (
	student = enums.UserRoleStudent
	staff   = enums.UserRoleStaff
	admin   = enums.UserRoleAdmin
)

var operationRoles = map[Operation][]enums.UserRole{
	OpCreateOrder:       {student, staff, admin},
	OpViewOrder:         {student, staff, admin},
	OpAcceptOrder:       {staff, admin},
	OpRejectOrder:       {staff, admin},
	OpReceiveOrder:      {staff, admin},
	OpTransportOrder:    {staff, admin},
	OpDeliverOrder:      {staff, admin},
	OpCancelOrder:       {student, staff, admin},
	OpDelayOrders:       {student, staff, admin},
	OpCreateDelivery:    {staff, admin},
	OpViewDelivery:      {staff, admin},
	OpAcceptDelivery:    {staff},
	OpFinishDelivery:    {staff, admin},
	OpCancelDelivery:    {staff, admin},
	OpUpdateDelivery:    {staff, admin},
	OpDeleteDelivery:    {staff, admin},
	OpSuggestDeliveries: {staff, admin},
	OpRouteDelivery:     {staff, admin},
	OpCreatePayment:     {student, admin},
	OpManageRegulation:  {admin},
	OpUnbanStudent:      {admin},
	OpReadNotifications: {student, staff, admin},
}

// Allowed reports whether role may perform op.
func Allowed(op Operation, role enums.UserRole) bool {
	for _, candidate := range operationRoles[op] {
		if candidate == role {
			return true
		}
	}
	return false
}

// Check returns a FORBIDDEN error when role may not perform op.
func Check(op Operation, role enums.UserRole) error {
	if Allowed(op, role) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("role %q may not perform %s", role, op))
}

// OperationForOrderStatus maps a target order status to the operation that
// writes it.
func OperationForOrderStatus(status enums.OrderStatus) (Operation, bool) {
	switch status {
	case enums.OrderStatusAccepted:
		return OpAcceptOrder, true
	case enums.OrderStatusRejected:
		return OpRejectOrder, true
	case enums.OrderStatusReceivedExternal:
		return OpReceiveOrder, true
	case enums.OrderStatusInTransport:
		return OpTransportOrder, true
	case enums.OrderStatusDelivered:
		return OpDeliverOrder, true
	case enums.OrderStatusCanceled:
		return OpCancelOrder, true
	}
	return "", false
}

// cancelMatrix lists, per role, the current order statuses from which that
// role may cancel.
var cancelMatrix = map[enums.UserRole]map[enums.OrderStatus]bool{
	student: {
		enums.OrderStatusPending:  true,
		enums.OrderStatusAccepted: true,
	},
	staff: {
		enums.OrderStatusPending:          true,
		enums.OrderStatusAccepted:         true,
		enums.OrderStatusReceivedExternal: true,
		enums.OrderStatusInTransport:      true,
	},
	admin: {
		enums.OrderStatusPending:          true,
		enums.OrderStatusAccepted:         true,
		enums.OrderStatusReceivedExternal: true,
		enums.OrderStatusInTransport:      true,
	},
}

// CanCancelOrder consults the cancel matrix.
func CanCancelOrder(role enums.UserRole, current enums.OrderStatus) bool {
	return cancelMatrix[role][current]
}
