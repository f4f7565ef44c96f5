package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/unimeet/internal/services"
)

// EventRequest принимает и JSON, и multipart форму. Даты в RFC 3339.
type EventRequest struct {
	Name                 string `json:"name" form:"name"`
	Description          string `json:"description" form:"description"`
	Location             string `json:"location" form:"location"`
	Category             string `json:"category" form:"category"`
	StartsAt             string `json:"startsAt" form:"startsAt"`
	RegistrationDeadline string `json:"registrationDeadline" form:"registrationDeadline"`
	AttendanceLimit      int    `json:"attendanceLimit" form:"attendanceLimit"`
}

type EventResponse struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	Location             string    `json:"location"`
	Category             string    `json:"category"`
	StartsAt             time.Time `json:"startsAt"`
	RegistrationDeadline time.Time `json:"registrationDeadline"`
	AttendanceLimit      int       `json:"attendanceLimit"`
	OwnerID              uuid.UUID `json:"ownerId"`
	OwnerName            string    `json:"ownerName"`
	Images               []string  `json:"images"`
	RegistrationCount    int64     `json:"registrationCount"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`

	// Только для запросов с токеном
	IsRegistered *bool `json:"isRegistered,omitempty"`
}

type RegistrationResponse struct {
	EventID           uuid.UUID `json:"eventId"`
	RegistrationCount int64     `json:"registrationCount"`
}

// NewEventResponse собирает ответ; withViewer включает поле isRegistered
func NewEventResponse(v *services.EventView, withViewer bool) EventResponse {
	resp := EventResponse{
		ID:                   v.ID,
		Name:                 v.Name,
		Description:          v.Description,
		Location:             v.Location,
		Category:             v.Category,
		StartsAt:             v.StartsAt.UTC(),
		RegistrationDeadline: v.RegistrationDeadline.UTC(),
		AttendanceLimit:      v.AttendanceLimit,
		OwnerID:              v.OwnerID,
		OwnerName:            v.OwnerName,
		Images:               nonNil(v.Images),
		RegistrationCount:    v.RegistrationCount,
		CreatedAt:            v.CreatedAt,
		UpdatedAt:            v.UpdatedAt,
	}
	if withViewer {
		registered := v.IsRegistered
		resp.IsRegistered = &registered
	}
	return resp
}

func NewEventList(views []services.EventView, withViewer bool) []EventResponse {
	out := make([]EventResponse, len(views))
	for i := range views {
		out[i] = NewEventResponse(&views[i], withViewer)
	}
	return out
}
