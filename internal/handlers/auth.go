package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/unimeet/internal/handlers/dto"
	"github.com/thereayou/unimeet/internal/middleware"
	"github.com/thereayou/unimeet/internal/services"
	"github.com/thereayou/unimeet/pkg/auth"
)

// TokenRevoker кладёт токен в черный список до его истечения
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

type AuthHandler struct {
	users      *services.UserService
	jwtManager *auth.JWTManager
	revoker    TokenRevoker
}

func NewAuthHandler(users *services.UserService, jwtMgr *auth.JWTManager, revoker TokenRevoker) *AuthHandler {
	return &AuthHandler{users: users, jwtManager: jwtMgr, revoker: revoker}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.AuthResponse{Token: res.Token, User: dto.NewUserResponse(res.User)})
}

// Login выдаёт JWT и обновляет last_seen
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.users.Login(c.Request.Context(), services.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AuthResponse{Token: res.Token, User: dto.NewUserResponse(res.User)})
}

// Logout ставит токен в черный список в Redis до истечения
func (h *AuthHandler) Logout(c *gin.Context) {
	rawToken := middleware.TokenFrom(c)

	exp, err := h.jwtManager.Expiry(rawToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid token"})
		return
	}

	if err := h.revoker.Revoke(c.Request.Context(), rawToken, time.Until(exp)); err != nil {
		slog.Error("token revoke failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
