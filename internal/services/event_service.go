package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/thereayou/unimeet/internal/database"
	"github.com/thereayou/unimeet/internal/models"
	"github.com/thereayou/unimeet/internal/storage"
)

const EventImagesFolder = "events"

// Типы уведомлений для подписчиков события
const (
	NotifyRegistrationCount = "registration_count"
	NotifyEventUpdated      = "event_updated"
	NotifyEventDeleted      = "event_deleted"
)

// Notifier рассылает изменения события подписчикам
type Notifier interface {
	NotifyEvent(eventID uuid.UUID, kind string, payload any)
}

type noopNotifier struct{}

func (noopNotifier) NotifyEvent(uuid.UUID, string, any) {}

// EventView - событие вместе с данными о регистрациях
type EventView struct {
	models.Event
	RegistrationCount int64
	IsRegistered      bool
}

type RegistrationResult struct {
	EventID           uuid.UUID
	RegistrationCount int64
}

type EventService struct {
	db        *database.Database
	uploads   *storage.Uploader
	notifier  Notifier
	maxImages int
}

func NewEventService(db *database.Database, uploads *storage.Uploader, notifier Notifier, maxImages int) *EventService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &EventService{db: db, uploads: uploads, notifier: notifier, maxImages: maxImages}
}

// Create создаёт событие от имени caller. При любой ошибке загруженные картинки удаляются.
func (s *EventService) Create(ctx context.Context, caller Caller, draft EventDraft, images []*multipart.FileHeader, now time.Time) (*EventView, error) {
	draft = draft.normalized()
	if err := ValidateEventDraft(draft, now.UTC()); err != nil {
		return nil, err
	}

	owner, err := s.db.GetUser(ctx, caller.UserID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, notFound("user")
		}
		return nil, fmt.Errorf("load owner: %w", err)
	}

	st := s.uploads.Stage()
	defer st.Rollback(ctx)

	refs, err := s.stageImages(ctx, st, images)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		OwnerID:   owner.ID,
		OwnerName: owner.FullName,
		Images:    datatypes.JSONSlice[string](refs),
	}
	applyDraft(event, draft)

	if err := s.db.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	st.Commit()

	return &EventView{Event: *event}, nil
}

// Update перезаписывает поля события. Новые картинки полностью заменяют старые,
// без картинок старые остаются.
func (s *EventService) Update(ctx context.Context, eventID uuid.UUID, caller Caller, draft EventDraft, images []*multipart.FileHeader, now time.Time) (*EventView, error) {
	current, err := s.db.GetEvent(ctx, eventID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, notFound("event")
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if current.OwnerID != caller.UserID {
		return nil, ErrForbidden
	}

	draft = draft.normalized()
	if err := ValidateEventDraft(draft, now.UTC()); err != nil {
		return nil, err
	}

	st := s.uploads.Stage()
	defer st.Rollback(ctx)

	refs, err := s.stageImages(ctx, st, images)
	if err != nil {
		return nil, err
	}

	var (
		updated    *models.Event
		orphaned   []string
		count      int64
		registered bool
	)
	err = s.db.Transaction(ctx, func(tx *database.Database) error {
		// владелец проверяется ещё раз по заблокированной строке
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			if database.IsNotFound(err) {
				return notFound("event")
			}
			return err
		}
		if event.OwnerID != caller.UserID {
			return ErrForbidden
		}

		count, err = tx.CountRegistrations(ctx, eventID)
		if err != nil {
			return err
		}
		// лимит нельзя опустить ниже уже занятых мест
		if int64(draft.AttendanceLimit) < count {
			return Invalid("attendanceLimit", "must be at least the current registration count")
		}
		registered, err = tx.RegistrationExists(ctx, caller.UserID, eventID)
		if err != nil {
			return err
		}

		applyDraft(event, draft)
		if len(refs) > 0 {
			orphaned = append(orphaned, event.Images...)
			event.Images = datatypes.JSONSlice[string](refs)
		}

		if err := tx.UpdateEvent(ctx, event); err != nil {
			return err
		}
		updated = event
		return nil
	})
	if err != nil {
		return nil, wrapUnexpected("update event", err)
	}
	st.Commit()

	s.uploads.DeleteRefs(ctx, orphaned)

	s.notifier.NotifyEvent(eventID, NotifyEventUpdated, &EventView{Event: *updated, RegistrationCount: count})
	return &EventView{Event: *updated, RegistrationCount: count, IsRegistered: registered}, nil
}

// Delete удаляет событие, его регистрации и картинки
func (s *EventService) Delete(ctx context.Context, eventID uuid.UUID, caller Caller) error {
	var images []string

	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			if database.IsNotFound(err) {
				return notFound("event")
			}
			return err
		}
		if event.OwnerID != caller.UserID {
			return ErrForbidden
		}

		images = event.Images
		return tx.DeleteEvent(ctx, eventID)
	})
	if err != nil {
		return wrapUnexpected("delete event", err)
	}

	s.uploads.DeleteRefs(ctx, images)
	s.notifier.NotifyEvent(eventID, NotifyEventDeleted, nil)
	return nil
}

// Register записывает пользователя на событие. Проверка мест и вставка идут
// в одной транзакции под блокировкой строки события, поэтому параллельные
// регистрации на одно событие выполняются по очереди.
func (s *EventService) Register(ctx context.Context, eventID, userID uuid.UUID, now time.Time) (*RegistrationResult, error) {
	var count int64

	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			if database.IsNotFound(err) {
				return notFound("event")
			}
			return err
		}

		if !now.Before(event.RegistrationDeadline) {
			return ErrRegistrationClosed
		}

		exists, err := tx.RegistrationExists(ctx, userID, eventID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateRegistration
		}

		count, err = tx.CountRegistrations(ctx, eventID)
		if err != nil {
			return err
		}
		if count >= int64(event.AttendanceLimit) {
			return ErrCapacityExceeded
		}

		reg := &models.Registration{UserID: userID, EventID: eventID, CreatedAt: now.UTC()}
		if err := tx.InsertRegistration(ctx, reg); err != nil {
			if errors.Is(err, database.ErrDuplicateKey) {
				return ErrDuplicateRegistration
			}
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return nil, wrapUnexpected("register", err)
	}

	s.notifier.NotifyEvent(eventID, NotifyRegistrationCount, map[string]any{
		"eventId":           eventID,
		"registrationCount": count,
	})
	return &RegistrationResult{EventID: eventID, RegistrationCount: count}, nil
}

// List возвращает все события по времени начала. viewer может быть uuid.Nil.
func (s *EventService) List(ctx context.Context, viewer uuid.UUID) ([]EventView, error) {
	events, err := s.db.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return s.views(ctx, events, viewer)
}

func (s *EventService) Get(ctx context.Context, eventID, viewer uuid.UUID) (*EventView, error) {
	event, err := s.db.GetEvent(ctx, eventID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, notFound("event")
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	views, err := s.views(ctx, []models.Event{*event}, viewer)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListRegistered возвращает события, на которые записан пользователь
func (s *EventService) ListRegistered(ctx context.Context, userID uuid.UUID) ([]EventView, error) {
	events, err := s.db.ListRegisteredEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list registered events: %w", err)
	}
	return s.views(ctx, events, userID)
}

func (s *EventService) views(ctx context.Context, events []models.Event, viewer uuid.UUID) ([]EventView, error) {
	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	counts, err := s.db.CountRegistrationsByEvent(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}

	registered := map[uuid.UUID]bool{}
	if viewer != uuid.Nil {
		registered, err = s.db.RegisteredEventIDs(ctx, viewer, ids)
		if err != nil {
			return nil, fmt.Errorf("load viewer registrations: %w", err)
		}
	}

	views := make([]EventView, len(events))
	for i, e := range events {
		views[i] = EventView{Event: e, RegistrationCount: counts[e.ID], IsRegistered: registered[e.ID]}
	}
	return views, nil
}

func (s *EventService) stageImages(ctx context.Context, st *storage.Staging, images []*multipart.FileHeader) ([]string, error) {
	if s.maxImages > 0 && len(images) > s.maxImages {
		return nil, Invalid("images", fmt.Sprintf("must have at most %d items", s.maxImages))
	}

	refs := make([]string, 0, len(images))
	for _, fh := range images {
		ref, err := st.PutImage(ctx, EventImagesFolder, fh)
		if err != nil {
			return nil, imageError("images", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func applyDraft(event *models.Event, d EventDraft) {
	event.Name = d.Name
	event.Description = d.Description
	event.Location = d.Location
	event.Category = d.Category
	event.StartsAt = d.StartsAt
	event.RegistrationDeadline = d.RegistrationDeadline
	event.AttendanceLimit = d.AttendanceLimit
}

// imageError превращает ошибки картинок в ошибки валидации поля
func imageError(field string, err error) error {
	if errors.Is(err, storage.ErrNotImage) || errors.Is(err, storage.ErrFileTooLarge) {
		return Invalid(field, err.Error())
	}
	return fmt.Errorf("store image: %w", err)
}

// wrapUnexpected оставляет доменные ошибки как есть, остальные оборачивает
func wrapUnexpected(op string, err error) error {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrRegistrationClosed),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrDuplicateRegistration),
		errors.Is(err, ErrConstraintViolation),
		errors.As(err, &verr):
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
