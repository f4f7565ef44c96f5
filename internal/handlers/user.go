package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/unimeet/internal/handlers/dto"
	"github.com/thereayou/unimeet/internal/middleware"
	"github.com/thereayou/unimeet/internal/services"
)

type UserHandler struct {
	users  *services.UserService
	events *services.EventService
}

func NewUserHandler(users *services.UserService, events *services.EventService) *UserHandler {
	return &UserHandler{users: users, events: events}
}

// GetMe возвращает профиль текущего пользователя
func (h *UserHandler) GetMe(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	user, err := h.users.Profile(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserResponse(user))
}

// UpdateMe обновляет профиль. Принимает JSON или multipart с файлом profileImage.
// В ответе новый токен: email и имя в старом могли устареть.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	var (
		in    services.ProfileInput
		image *multipart.FileHeader
	)
	if isMultipart(c) {
		var err error
		in, image, err = profileFromForm(c)
		if err != nil {
			respondError(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.users.UpdateProfile(c.Request.Context(), caller, in, image)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AuthResponse{Token: res.Token, User: dto.NewUserResponse(res.User)})
}

// GetUser возвращает публичный профиль по ID
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPublicUserResponse(user))
}

// MyRegistrations возвращает события, на которые записан текущий пользователь
func (h *UserHandler) MyRegistrations(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	views, err := h.events.ListRegistered(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewEventList(views, true))
}

// profileFromForm читает только переданные поля формы
func profileFromForm(c *gin.Context) (services.ProfileInput, *multipart.FileHeader, error) {
	var in services.ProfileInput

	optional := func(name string) *string {
		if v, ok := c.GetPostForm(name); ok {
			return &v
		}
		return nil
	}
	in.FullName = optional("fullName")
	in.Email = optional("email")
	in.Location = optional("location")
	in.FieldOfStudy = optional("fieldOfStudy")
	in.Password = optional("password")

	if raw := optional("age"); raw != nil {
		age, err := strconv.Atoi(strings.TrimSpace(*raw))
		if err != nil {
			return in, nil, services.Invalid("age", "must be a number")
		}
		in.Age = &age
	}
	if values, ok := c.GetPostFormArray("interests"); ok {
		in.Interests = &values
	}

	image, err := c.FormFile("profileImage")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil, nil
		}
		return in, nil, services.Invalid("profileImage", "could not read upload")
	}
	return in, image, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}
