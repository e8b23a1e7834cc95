package notifications

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

const (
	LocaleVI = "vi"
	LocaleEN = "en"
)

var orderStatusText = map[string]map[enums.OrderStatus]string{
	LocaleVI: {
		enums.OrderStatusPending:          "đã được tạo",
		enums.OrderStatusAccepted:         "đã được xác nhận",
		enums.OrderStatusRejected:         "đã bị từ chối",
		enums.OrderStatusReceivedExternal: "đã được nhận từ đơn vị vận chuyển",
		enums.OrderStatusInTransport:      "đang được giao",
		enums.OrderStatusDelivered:        "đã được giao thành công",
		enums.OrderStatusCanceled:         "đã bị hủy",
	},
	LocaleEN: {
		enums.OrderStatusPending:          "has been created",
		enums.OrderStatusAccepted:         "has been accepted",
		enums.OrderStatusRejected:         "has been rejected",
		enums.OrderStatusReceivedExternal: "has been received from the carrier",
		enums.OrderStatusInTransport:      "is on its way",
		enums.OrderStatusDelivered:        "has been delivered",
		enums.OrderStatusCanceled:         "has been canceled",
	},
}

var deliveryStatusText = map[string]map[enums.DeliveryStatus]string{
	LocaleVI: {
		enums.DeliveryStatusPending:  "đang chờ nhận",
		enums.DeliveryStatusAccepted: "đã được nhận",
		enums.DeliveryStatusFinished: "đã hoàn thành",
		enums.DeliveryStatusCanceled: "đã bị hủy",
	},
	LocaleEN: {
		enums.DeliveryStatusPending:  "is waiting to be accepted",
		enums.DeliveryStatusAccepted: "has been accepted",
		enums.DeliveryStatusFinished: "has been finished",
		enums.DeliveryStatusCanceled: "has been canceled",
	},
}

// NormalizeLocale maps anything unsupported to Vietnamese.
func NormalizeLocale(locale string) string {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case LocaleEN:
		return LocaleEN
	default:
		return LocaleVI
	}
}

// OrderStatusRequest builds the notification sent to an order's student after
// a transition.
func OrderStatusRequest(userID, orderID uuid.UUID, locale, checkCode string, status enums.OrderStatus, reason *string) Request {
	locale = NormalizeLocale(locale)
	var title, message string
	if locale == LocaleEN {
		title = "Order update"
		message = fmt.Sprintf("Order %s %s.", checkCode, orderStatusText[locale][status])
	} else {
		title = "Cập nhật đơn hàng"
		message = fmt.Sprintf("Đơn hàng %s %s.", checkCode, orderStatusText[locale][status])
	}
	if reason != nil && strings.TrimSpace(*reason) != "" {
		if locale == LocaleEN {
			message += " Reason: " + *reason
		} else {
			message += " Lý do: " + *reason
		}
	}
	return Request{UserID: userID, Title: title, Message: message, OrderID: &orderID}
}

// DeliveryStatusRequest builds the notification sent to a delivery's staff.
func DeliveryStatusRequest(userID, deliveryID uuid.UUID, locale, displayID string, status enums.DeliveryStatus) Request {
	locale = NormalizeLocale(locale)
	if locale == LocaleEN {
		return Request{
			UserID:     userID,
			Title:      "Delivery update",
			Message:    fmt.Sprintf("Delivery %s %s.", displayID, deliveryStatusText[locale][status]),
			DeliveryID: &deliveryID,
		}
	}
	return Request{
		UserID:     userID,
		Title:      "Cập nhật chuyến giao",
		Message:    fmt.Sprintf("Chuyến giao %s %s.", displayID, deliveryStatusText[locale][status]),
		DeliveryID: &deliveryID,
	}
}

// PaymentRequest words full and partial payments differently.
func PaymentRequest(userID, orderID uuid.UUID, locale, checkCode string, amount, remaining int64, fullyPaid bool) Request {
	locale = NormalizeLocale(locale)
	var title, message string
	switch {
	case locale == LocaleEN && fullyPaid:
		title = "Payment complete"
		message = fmt.Sprintf("We received %d VND. Order %s is fully paid.", amount, checkCode)
	case locale == LocaleEN:
		title = "Partial payment received"
		message = fmt.Sprintf("We received %d VND for order %s. %d VND remaining.", amount, checkCode, remaining)
	case fullyPaid:
		title = "Thanh toán hoàn tất"
		message = fmt.Sprintf("Đã nhận %d VND. Đơn hàng %s đã được thanh toán đủ.", amount, checkCode)
	default:
		title = "Đã nhận thanh toán một phần"
		message = fmt.Sprintf("Đã nhận %d VND cho đơn hàng %s. Còn lại %d VND.", amount, checkCode, remaining)
	}
	return Request{UserID: userID, Title: title, Message: message, OrderID: &orderID}
}
