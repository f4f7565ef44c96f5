package services

import "github.com/google/uuid"

// Caller описывает аутентифицированного пользователя текущего запроса.
// Собирается из проверенного токена и явно передаётся в сервисы.
type Caller struct {
	UserID   uuid.UUID
	Email    string
	FullName string
}
