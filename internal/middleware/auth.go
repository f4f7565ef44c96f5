package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/unimeet/internal/services"
	"github.com/thereayou/unimeet/pkg/auth"
)

const (
	CallerKey = "caller"
	TokenKey  = "token"
)

// RevocationChecker сообщает, отозван ли токен (logout)
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type Authenticator struct {
	jwt     *auth.JWTManager
	revoked RevocationChecker
}

func NewAuthenticator(jwtManager *auth.JWTManager, revoked RevocationChecker) *Authenticator {
	return &Authenticator{jwt: jwtManager, revoked: revoked}
}

// AuthMiddleware проверяет JWT токен из заголовка Authorization
func (a *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			abortUnauthorized(c, "missing or invalid token")
			return
		}
		if !a.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth пускает анонимов, но если токен передан, он должен быть валидным
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			abortUnauthorized(c, "missing or invalid token")
			return
		}
		if !a.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// WSAuthMiddleware специальный middleware для WebSocket: браузер не умеет
// выставлять заголовки при апгрейде, поэтому токен можно передать в ?token=
func (a *Authenticator) WSAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = strings.TrimSpace(parts[1])
			}
		}
		if token == "" {
			abortUnauthorized(c, "missing token")
			return
		}
		if !a.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

func (a *Authenticator) authenticate(c *gin.Context, token string) bool {
	if a.revoked != nil {
		revoked, err := a.revoked.IsRevoked(c.Request.Context(), token)
		if err != nil {
			slog.Error("token blacklist lookup failed", "error", err)
			abortUnauthorized(c, "token check failed")
			return false
		}
		if revoked {
			abortUnauthorized(c, "token is blacklisted")
			return false
		}
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		abortUnauthorized(c, "invalid token")
		return false
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		abortUnauthorized(c, "invalid user id")
		return false
	}

	c.Set(CallerKey, services.Caller{UserID: userID, Email: claims.Email, FullName: claims.FullName})
	c.Set(TokenKey, token)
	return true
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// CallerFrom достаёт пользователя, положенного одним из auth middleware
func CallerFrom(c *gin.Context) (services.Caller, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return services.Caller{}, false
	}
	caller, ok := v.(services.Caller)
	return caller, ok
}

// TokenFrom возвращает исходный токен запроса
func TokenFrom(c *gin.Context) string {
	return c.GetString(TokenKey)
}
