package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/unimeet/internal/models"
)

// UserResponse - профиль владельца, с email
type UserResponse struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Age          int       `json:"age,omitempty"`
	Location     string    `json:"location,omitempty"`
	FieldOfStudy string    `json:"fieldOfStudy,omitempty"`
	Interests    []string  `json:"interests"`
	ProfileImage string    `json:"profileImage,omitempty"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUserResponse отдаётся другим пользователям
type PublicUserResponse struct {
	ID           uuid.UUID `json:"id"`
	FullName     string    `json:"fullName"`
	Age          int       `json:"age,omitempty"`
	Location     string    `json:"location,omitempty"`
	FieldOfStudy string    `json:"fieldOfStudy,omitempty"`
	Interests    []string  `json:"interests"`
	ProfileImage string    `json:"profileImage,omitempty"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		Age:          u.Age,
		Location:     u.Location,
		FieldOfStudy: u.FieldOfStudy,
		Interests:    nonNil(u.Interests),
		ProfileImage: u.ProfileImage,
		LastSeenAt:   u.LastSeenAt,
		CreatedAt:    u.CreatedAt,
	}
}

func NewPublicUserResponse(u *models.User) PublicUserResponse {
	return PublicUserResponse{
		ID:           u.ID,
		FullName:     u.FullName,
		Age:          u.Age,
		Location:     u.Location,
		FieldOfStudy: u.FieldOfStudy,
		Interests:    nonNil(u.Interests),
		ProfileImage: u.ProfileImage,
		LastSeenAt:   u.LastSeenAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
