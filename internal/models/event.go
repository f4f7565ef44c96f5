package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Event struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name                 string    `gorm:"not null"`
	Description          string
	Location             string    `gorm:"not null"`
	Category             string    `gorm:"index"`
	StartsAt             time.Time `gorm:"not null;index"`
	RegistrationDeadline time.Time `gorm:"not null"`
	AttendanceLimit      int       `gorm:"not null;check:chk_events_attendance_limit,attendance_limit > 0"`
	OwnerID              uuid.UUID `gorm:"type:uuid;not null;index"`
	OwnerName            string
	CreatedAt            time.Time
	UpdatedAt            time.Time

	// Порядок ссылок сохраняется в порядке загрузки
	Images datatypes.JSONSlice[string]
}

func (e *Event) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
