package services

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MaxInterests      = 10
	MaxInterestLength = 40
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// В ошибках используем имена полей из json
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// checkStruct прогоняет теги validate и складывает ошибки в verr
func checkStruct(s any, verr *ValidationError) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), describe(fe))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	collection := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map

	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if collection {
			return fmt.Sprintf("must have at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if collection {
			return fmt.Sprintf("must have at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return "is invalid"
	}
}

// EventDraft - данные события от пользователя, одинаковые для создания и обновления
type EventDraft struct {
	Name                 string    `json:"name" validate:"required,max=120"`
	Description          string    `json:"description" validate:"max=5000"`
	Location             string    `json:"location" validate:"required,max=200"`
	Category             string    `json:"category" validate:"required,max=60"`
	StartsAt             time.Time `json:"startsAt"`
	RegistrationDeadline time.Time `json:"registrationDeadline"`
	AttendanceLimit      int       `json:"attendanceLimit" validate:"gt=0"`
}

func (d EventDraft) normalized() EventDraft {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.Location = strings.TrimSpace(d.Location)
	d.Category = strings.TrimSpace(d.Category)
	d.StartsAt = d.StartsAt.UTC()
	d.RegistrationDeadline = d.RegistrationDeadline.UTC()
	return d
}

// ValidateEventDraft проверяет поля и расписание: registrationDeadline < startsAt, оба в будущем.
func ValidateEventDraft(d EventDraft, now time.Time) error {
	verr := &ValidationError{}
	if err := checkStruct(d, verr); err != nil {
		return err
	}

	switch {
	case d.StartsAt.IsZero():
		verr.Add("startsAt", "is required")
	case !d.StartsAt.After(now):
		verr.Add("startsAt", "must be in the future")
	}

	switch {
	case d.RegistrationDeadline.IsZero():
		verr.Add("registrationDeadline", "is required")
	case !d.RegistrationDeadline.After(now):
		verr.Add("registrationDeadline", "must be in the future")
	case !d.StartsAt.IsZero() && !d.RegistrationDeadline.Before(d.StartsAt):
		verr.Add("registrationDeadline", "must be before startsAt")
	}

	return verr.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeInterests убирает пустые и повторы (без учёта регистра) и сортирует
func normalizeInterests(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(s), " ")
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

// domainAllowed проверяет домен почты: точное совпадение или поддомен
func domainAllowed(email string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d == "" {
			continue
		}
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
