package models

import "github.com/google/uuid"

// Student extends a user with residence data and the fault counter the ban
// policy reads and writes.
type Student struct {
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Dormitory   string    `gorm:"column:dormitory;type:text;not null;index"`
	Building    string    `gorm:"column:building;type:text;not null"`
	Room        string    `gorm:"column:room;type:text;not null"`
	NumberFault int       `gorm:"column:number_fault;not null"`
}
