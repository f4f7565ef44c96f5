package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/unimeet/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *Database) CreateEvent(ctx context.Context, event *models.Event) error {
	return d.db.WithContext(ctx).Create(event).Error
}

func (d *Database) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := d.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// LockEvent читает событие с блокировкой строки до конца транзакции.
// Вызывать только на tx из Transaction.
func (d *Database) LockEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := d.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&event, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *Database) UpdateEvent(ctx context.Context, event *models.Event) error {
	return d.db.WithContext(ctx).Save(event).Error
}

// ListEvents возвращает все события по возрастанию времени начала
func (d *Database) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := d.db.WithContext(ctx).
		Order("starts_at ASC").
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// DeleteEvent удаляет событие вместе со всеми регистрациями
func (d *Database) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := NewDatabase(tx).DeleteRegistrationsForEvent(ctx, id); err != nil {
			return err
		}

		res := tx.Delete(&models.Event{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListEventImages возвращает ссылки на картинки всех событий
func (d *Database) ListEventImages(ctx context.Context) ([]string, error) {
	var events []models.Event
	if err := d.db.WithContext(ctx).Select("id", "images").Find(&events).Error; err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(events))
	for _, e := range events {
		refs = append(refs, e.Images...)
	}
	return refs, nil
}
