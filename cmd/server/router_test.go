package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/thereayou/unimeet/internal/database"
	"github.com/thereayou/unimeet/internal/handlers"
	"github.com/thereayou/unimeet/internal/middleware"
	"github.com/thereayou/unimeet/internal/services"
	"github.com/thereayou/unimeet/internal/storage"
	"github.com/thereayou/unimeet/internal/storage/storagetest"
	"github.com/thereayou/unimeet/internal/websocket"
	"github.com/thereayou/unimeet/pkg/auth"
)

type memoryBlacklist struct {
	mu     sync.Mutex
	tokens map[string]bool
}

func (b *memoryBlacklist) Revoke(_ context.Context, token string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token] = true
	return nil
}

func (b *memoryBlacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[token], nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	uploads := storage.NewUploader(store, storage.ImageProcessor{MaxDimension: 64})

	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	blacklist := &memoryBlacklist{tokens: map[string]bool{}}
	hub := websocket.NewHub()
	t.Cleanup(hub.Stop)

	users := services.NewUserService(db, auth.NewPasswordHasher(bcrypt.MinCost), jwtMgr, uploads, []string{"uni.edu"})
	events := services.NewEventService(db, uploads, hub, 5)

	r := gin.New()
	APIEndpoints(r, Handlers{
		Auth:   handlers.NewAuthHandler(users, jwtMgr, blacklist),
		Users:  handlers.NewUserHandler(users, events),
		Events: handlers.NewEventHandler(events),
		WS:     handlers.NewWebSocketHandler(hub, nil),
	}, middleware.NewAuthenticator(jwtMgr, blacklist), middleware.NewIPRateLimiter(600, 100), db.Ping)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type authBody struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		FullName string `json:"fullName"`
	} `json:"user"`
}

type eventBody struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	OwnerName         string   `json:"ownerName"`
	Images            []string `json:"images"`
	RegistrationCount int64    `json:"registrationCount"`
	IsRegistered      *bool    `json:"isRegistered"`
}

type errorBody struct {
	Error  string `json:"error"`
	Fields []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"fields"`
}

func signUp(t *testing.T, r http.Handler, email, name string) authBody {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/auth/register", "", map[string]any{
		"email": email, "password": "long password", "fullName": name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[authBody](t, w)
}

func eventPayload(limit int) map[string]any {
	now := time.Now().UTC()
	return map[string]any{
		"name":                 "Hackathon",
		"description":          "24 hours of code",
		"location":             "Main hall",
		"category":             "tech",
		"startsAt":             now.Add(48 * time.Hour).Format(time.RFC3339),
		"registrationDeadline": now.Add(24 * time.Hour).Format(time.RFC3339),
		"attendanceLimit":      limit,
	}
}

func TestAuthFlow(t *testing.T) {
	r := newTestRouter(t)

	alice := signUp(t, r, "Alice@Uni.edu", "Alice")
	assert.Equal(t, "alice@uni.edu", alice.User.Email)
	assert.NotEmpty(t, alice.Token)

	w := doJSON(t, r, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "alice@uni.edu", "password": "long password", "fullName": "Other",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "eve@gmail.com", "password": "long password", "fullName": "Eve",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email", decode[errorBody](t, w).Fields[0].Field)

	w = doJSON(t, r, http.MethodPost, "/auth/login", "", map[string]any{"email": "alice@uni.edu", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/auth/login", "", map[string]any{"email": "alice@uni.edu", "password": "long password"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[authBody](t, w).Token

	w = doJSON(t, r, http.MethodGet, "/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEventLifecycle(t *testing.T) {
	r := newTestRouter(t)
	owner := signUp(t, r, "owner@uni.edu", "Olga Owner")
	guest := signUp(t, r, "guest@uni.edu", "Gus Guest")
	late := signUp(t, r, "late@uni.edu", "Lee Late")

	w := doJSON(t, r, http.MethodPost, "/events", "", eventPayload(1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/events", owner.Token, eventPayload(1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[eventBody](t, w)
	assert.Equal(t, "Olga Owner", created.OwnerName)
	assert.Equal(t, int64(0), created.RegistrationCount)

	w = doJSON(t, r, http.MethodPost, "/events/"+created.ID+"/register", guest.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["registrationCount"])

	w = doJSON(t, r, http.MethodPost, "/events/"+created.ID+"/register", guest.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/events/"+created.ID+"/register", late.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/events/"+created.ID, guest.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[eventBody](t, w)
	assert.Equal(t, int64(1), got.RegistrationCount)
	require.NotNil(t, got.IsRegistered)
	assert.True(t, *got.IsRegistered)

	w = doJSON(t, r, http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]eventBody](t, w)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].IsRegistered)

	w = doJSON(t, r, http.MethodGet, "/profile/registrations", guest.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]eventBody](t, w), 1)

	update := eventPayload(3)
	update["name"] = "Hackathon 2"
	w = doJSON(t, r, http.MethodPut, "/events/"+created.ID, guest.Token, update)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPut, "/events/"+created.ID, owner.Token, update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[eventBody](t, w)
	assert.Equal(t, "Hackathon 2", updated.Name)
	assert.Equal(t, int64(1), updated.RegistrationCount)
	require.NotNil(t, updated.IsRegistered)
	assert.False(t, *updated.IsRegistered)

	w = doJSON(t, r, http.MethodDelete, "/events/"+created.ID, guest.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/events/"+created.ID, owner.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, "/events/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/events/"+created.ID+"/register", guest.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateEventValidation(t *testing.T) {
	r := newTestRouter(t)
	owner := signUp(t, r, "owner@uni.edu", "Olga Owner")

	payload := eventPayload(10)
	payload["registrationDeadline"], payload["startsAt"] = payload["startsAt"], payload["registrationDeadline"]
	w := doJSON(t, r, http.MethodPost, "/events", owner.Token, payload)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "registrationDeadline", body.Fields[0].Field)

	payload = eventPayload(10)
	payload["startsAt"] = "next tuesday"
	w = doJSON(t, r, http.MethodPost, "/events", owner.Token, payload)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "startsAt", decode[errorBody](t, w).Fields[0].Field)

	w = doJSON(t, r, http.MethodGet, "/events", "", nil)
	assert.Empty(t, decode[[]eventBody](t, w))

	w = doJSON(t, r, http.MethodGet, "/events/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateEventMultipart(t *testing.T) {
	r := newTestRouter(t)
	owner := signUp(t, r, "owner@uni.edu", "Olga Owner")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range eventPayload(5) {
		require.NoError(t, mw.WriteField(k, toString(v)))
	}
	for _, name := range []string{"a.png", "b.png"} {
		part, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write(storagetest.PNG(t, 10, 10))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/events", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+owner.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ev := decode[eventBody](t, w)
	assert.Len(t, ev.Images, 2)
}

func TestProfileUpdateMultipart(t *testing.T) {
	r := newTestRouter(t)
	me := signUp(t, r, "me@uni.edu", "Me")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("fullName", "Renamed"))
	require.NoError(t, mw.WriteField("age", "21"))
	require.NoError(t, mw.WriteField("interests", "music"))
	require.NoError(t, mw.WriteField("interests", "Art"))
	part, err := mw.CreateFormFile("profileImage", "me.png")
	require.NoError(t, err)
	_, err = part.Write(storagetest.PNG(t, 10, 10))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/profile", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+me.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
		User  struct {
			FullName     string   `json:"fullName"`
			Age          int      `json:"age"`
			Interests    []string `json:"interests"`
			ProfileImage string   `json:"profileImage"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Renamed", resp.User.FullName)
	assert.Equal(t, 21, resp.User.Age)
	assert.Equal(t, []string{"Art", "music"}, resp.User.Interests)
	assert.NotEmpty(t, resp.User.ProfileImage)

	// публичный профиль без email
	w = doJSON(t, r, http.MethodGet, "/users/"+me.User.ID, resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "me@uni.edu")
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	default:
		panic("unexpected field type")
	}
}
