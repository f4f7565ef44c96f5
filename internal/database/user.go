package database

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/unimeet/internal/models"
	"gorm.io/gorm"
)

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	if err := d.db.WithContext(ctx).Create(user).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (d *Database) UpdateUser(ctx context.Context, user *models.User) error {
	if err := d.db.WithContext(ctx).Save(user).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail ищет пользователя без учёта регистра
func (d *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := models.User{}
	err := d.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EmailTaken проверяет, занят ли email кем-то кроме exceptID
func (d *Database) EmailTaken(ctx context.Context, email string, exceptID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("LOWER(email) = ? AND id <> ?", strings.ToLower(strings.TrimSpace(email)), exceptID).
		Count(&count).Error
	return count > 0, err
}

func (d *Database) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	res := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_seen_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListProfileImages возвращает все непустые ссылки на аватары
func (d *Database) ListProfileImages(ctx context.Context) ([]string, error) {
	var refs []string
	err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("profile_image <> ''").
		Pluck("profile_image", &refs).Error
	return refs, err
}
