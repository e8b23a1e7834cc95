package models

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&User{},
		&Student{},
		&DormitoryRegulation{},
		&Order{},
		&OrderStatusHistory{},
		&Delivery{},
		&DeliveryOrder{},
		&DeliveryStatusHistory{},
		&Payment{},
		&Notification{},
		&OutboxEvent{},
	}
}
