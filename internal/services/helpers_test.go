package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/thereayou/unimeet/internal/database"
	"github.com/thereayou/unimeet/internal/storage"
	"github.com/thereayou/unimeet/pkg/auth"
)

type testEnv struct {
	db       *database.Database
	store    *storage.LocalStore
	users    *UserService
	events   *EventService
	tokens   *auth.JWTManager
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Connect(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	uploads := storage.NewUploader(store, storage.ImageProcessor{MaxDimension: 64})

	tokens := auth.NewJWTManager("test-secret", time.Hour)
	notifier := &recordingNotifier{}

	return &testEnv{
		db:       db,
		store:    store,
		users:    NewUserService(db, auth.NewPasswordHasher(bcrypt.MinCost), tokens, uploads, []string{"uni.edu"}),
		events:   NewEventService(db, uploads, notifier, 5),
		tokens:   tokens,
		notifier: notifier,
	}
}

// newUser регистрирует пользователя и возвращает Caller для него
func (e *testEnv) newUser(t *testing.T, name string) Caller {
	t.Helper()

	res, err := e.users.Register(context.Background(), RegisterInput{
		Email:    fmt.Sprintf("%s-%s@uni.edu", name, uuid.NewString()[:8]),
		Password: "correct horse",
		FullName: name,
	})
	require.NoError(t, err)
	return Caller{UserID: res.User.ID, Email: res.User.Email, FullName: res.User.FullName}
}

func (e *testEnv) newEvent(t *testing.T, owner Caller, now time.Time, limit int) *EventView {
	t.Helper()

	ev, err := e.events.Create(context.Background(), owner, draftAt(now, limit), nil, now)
	require.NoError(t, err)
	return ev
}

// draftAt - событие через 2 дня с закрытием регистрации через день
func draftAt(now time.Time, limit int) EventDraft {
	return EventDraft{
		Name:                 "Board games night",
		Description:          "Bring your own snacks",
		Location:             "Library, room 204",
		Category:             "social",
		StartsAt:             now.Add(48 * time.Hour),
		RegistrationDeadline: now.Add(24 * time.Hour),
		AttendanceLimit:      limit,
	}
}

type notification struct {
	EventID uuid.UUID
	Kind    string
	Payload any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyEvent(eventID uuid.UUID, kind string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{EventID: eventID, Kind: kind, Payload: payload})
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Kind
	}
	return out
}
