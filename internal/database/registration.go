package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/unimeet/internal/models"
)

func (d *Database) CountRegistrations(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count, err
}

// CountRegistrationsByEvent считает регистрации сразу для нескольких событий
func (d *Database) CountRegistrationsByEvent(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(eventIDs))
	if len(eventIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		EventID uuid.UUID
		Total   int64
	}
	err := d.db.WithContext(ctx).
		Model(&models.Registration{}).
		Select("event_id, COUNT(*) AS total").
		Where("event_id IN ?", eventIDs).
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		counts[r.EventID] = r.Total
	}
	return counts, nil
}

func (d *Database) RegistrationExists(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Count(&count).Error
	return count > 0, err
}

// InsertRegistration возвращает ErrDuplicateKey, если пара уже есть
func (d *Database) InsertRegistration(ctx context.Context, reg *models.Registration) error {
	if err := d.db.WithContext(ctx).Omit("User", "Event").Create(reg).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// DeleteRegistrationsForEvent очищает записи события, используется при его удалении
func (d *Database) DeleteRegistrationsForEvent(ctx context.Context, eventID uuid.UUID) error {
	return d.db.WithContext(ctx).Delete(&models.Registration{}, "event_id = ?", eventID).Error
}

// RegisteredEventIDs отмечает, на какие из eventIDs записан пользователь
func (d *Database) RegisteredEventIDs(ctx context.Context, userID uuid.UUID, eventIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	registered := make(map[uuid.UUID]bool)
	if len(eventIDs) == 0 {
		return registered, nil
	}

	var ids []uuid.UUID
	err := d.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("user_id = ? AND event_id IN ?", userID, eventIDs).
		Pluck("event_id", &ids).Error
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		registered[id] = true
	}
	return registered, nil
}

// ListRegisteredEvents получает события, на которые записан пользователь
func (d *Database) ListRegisteredEvents(ctx context.Context, userID uuid.UUID) ([]models.Event, error) {
	var events []models.Event

	sub := d.db.Model(&models.Registration{}).Select("event_id").Where("user_id = ?", userID)
	err := d.db.WithContext(ctx).
		Where("id IN (?)", sub).
		Order("starts_at ASC").
		Find(&events).Error

	return events, err
}
