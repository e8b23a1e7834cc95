package models

import "time"

// DormitoryRegulation holds per-dormitory policy set by administrators.
type DormitoryRegulation struct {
	Dormitory    string    `gorm:"column:dormitory;type:text;primaryKey"`
	BanThreshold int       `gorm:"column:ban_threshold;not null"`
	TimeSlots    []string  `gorm:"column:time_slots;serializer:json"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// AllowsTimeSlot reports whether slot is permitted. An empty list allows any slot.
func (r DormitoryRegulation) AllowsTimeSlot(slot string) bool {
	if len(r.TimeSlots) == 0 {
		return true
	}
	for _, candidate := range r.TimeSlots {
		if candidate == slot {
			return true
		}
	}
	return false
}
