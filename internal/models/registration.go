package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Registration связывает пользователя с событием. Пара (user, event) уникальна.
type Registration struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_registrations_user_event"`
	EventID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_registrations_user_event;index"`
	CreatedAt time.Time

	// Связи
	User  *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Event *Event `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
}

func (r *Registration) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
