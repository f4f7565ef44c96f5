package handlers

import (
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/unimeet/internal/handlers/dto"
	"github.com/thereayou/unimeet/internal/middleware"
	"github.com/thereayou/unimeet/internal/services"
)

type EventHandler struct {
	events *services.EventService
	now    func() time.Time
}

func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events, now: time.Now}
}

// CreateEvent создает событие, владельцем становится текущий пользователь
func (h *EventHandler) CreateEvent(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	draft, images, ok := h.bindEvent(c)
	if !ok {
		return
	}

	view, err := h.events.Create(c.Request.Context(), caller, draft, images, h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewEventResponse(view, true))
}

// ListEvents возвращает все события по времени начала
func (h *EventHandler) ListEvents(c *gin.Context) {
	caller, authenticated := middleware.CallerFrom(c)

	views, err := h.events.List(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewEventList(views, authenticated))
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	caller, authenticated := middleware.CallerFrom(c)

	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	view, err := h.events.Get(c.Request.Context(), eventID, caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewEventResponse(view, authenticated))
}

// UpdateEvent перезаписывает событие, доступно только владельцу
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	draft, images, ok := h.bindEvent(c)
	if !ok {
		return
	}

	view, err := h.events.Update(c.Request.Context(), eventID, caller, draft, images, h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewEventResponse(view, true))
}

func (h *EventHandler) DeleteEvent(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	if err := h.events.Delete(c.Request.Context(), eventID, caller); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Register записывает текущего пользователя на событие
func (h *EventHandler) Register(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	res, err := h.events.Register(c.Request.Context(), eventID, caller.UserID, h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RegistrationResponse{
		EventID:           res.EventID,
		RegistrationCount: res.RegistrationCount,
	})
}

// bindEvent разбирает JSON или multipart. При ошибке ответ уже отправлен.
func (h *EventHandler) bindEvent(c *gin.Context) (services.EventDraft, []*multipart.FileHeader, bool) {
	var req dto.EventRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return services.EventDraft{}, nil, false
	}

	var images []*multipart.FileHeader
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			badRequest(c, "invalid multipart form")
			return services.EventDraft{}, nil, false
		}
		images = form.File["images"]
	}

	draft, err := eventDraft(req)
	if err != nil {
		respondError(c, err)
		return services.EventDraft{}, nil, false
	}
	return draft, images, true
}

// eventDraft переводит запрос в EventDraft, ошибки дат собираются в ValidationError
func eventDraft(req dto.EventRequest) (services.EventDraft, error) {
	verr := &services.ValidationError{}

	parse := func(field, raw string) time.Time {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return time.Time{}
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			verr.Add(field, "must be an RFC 3339 timestamp")
			return time.Time{}
		}
		return t
	}

	draft := services.EventDraft{
		Name:                 req.Name,
		Description:          req.Description,
		Location:             req.Location,
		Category:             req.Category,
		StartsAt:             parse("startsAt", req.StartsAt),
		RegistrationDeadline: parse("registrationDeadline", req.RegistrationDeadline),
		AttendanceLimit:      req.AttendanceLimit,
	}
	return draft, verr.Err()
}

func eventIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "event not found"})
		return uuid.Nil, false
	}
	return id, true
}
