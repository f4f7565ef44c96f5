package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/thereayou/unimeet/internal/database"
	"github.com/thereayou/unimeet/internal/models"
	"github.com/thereayou/unimeet/internal/storage"
	"github.com/thereayou/unimeet/pkg/auth"
)

const ProfileImagesFolder = "profiles"

type RegisterInput struct {
	Email        string   `json:"email" validate:"required,email,max=254"`
	Password     string   `json:"password" validate:"required,min=8,max=72"`
	FullName     string   `json:"fullName" validate:"required,max=100"`
	Age          int      `json:"age" validate:"omitempty,gte=16,lte=100"`
	Location     string   `json:"location" validate:"max=200"`
	FieldOfStudy string   `json:"fieldOfStudy" validate:"max=120"`
	Interests    []string `json:"interests"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ProfileInput - частичное обновление профиля, nil означает "не менять"
type ProfileInput struct {
	FullName     *string   `json:"fullName" validate:"omitempty,min=1,max=100"`
	Email        *string   `json:"email" validate:"omitempty,email,max=254"`
	Age          *int      `json:"age" validate:"omitempty,gte=16,lte=100"`
	Location     *string   `json:"location" validate:"omitempty,max=200"`
	FieldOfStudy *string   `json:"fieldOfStudy" validate:"omitempty,max=120"`
	Interests    *[]string `json:"interests"`
	Password     *string   `json:"password" validate:"omitempty,min=8,max=72"`
}

type AuthResult struct {
	User  *models.User
	Token string
}

type UserService struct {
	db             *database.Database
	hasher         *auth.PasswordHasher
	tokens         *auth.JWTManager
	uploads        *storage.Uploader
	allowedDomains []string
}

func NewUserService(db *database.Database, hasher *auth.PasswordHasher, tokens *auth.JWTManager, uploads *storage.Uploader, allowedDomains []string) *UserService {
	return &UserService{
		db:             db,
		hasher:         hasher,
		tokens:         tokens,
		uploads:        uploads,
		allowedDomains: allowedDomains,
	}
}

// Register создаёт аккаунт и сразу выдаёт токен
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Location = strings.TrimSpace(in.Location)
	in.FieldOfStudy = strings.TrimSpace(in.FieldOfStudy)
	in.Interests = normalizeInterests(in.Interests)

	verr := &ValidationError{}
	if err := checkStruct(in, verr); err != nil {
		return nil, err
	}
	if in.Email != "" && !domainAllowed(in.Email, s.allowedDomains) {
		verr.Add("email", "must be a university email address")
	}
	checkInterests(in.Interests, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Age:          in.Age,
		Location:     in.Location,
		FieldOfStudy: in.FieldOfStudy,
		Interests:    datatypes.JSONSlice[string](in.Interests),
		LastSeenAt:   time.Now().UTC(),
	}
	if err := s.db.SaveUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicateKey) {
			return nil, fmt.Errorf("email already registered: %w", ErrConstraintViolation)
		}
		return nil, fmt.Errorf("save user: %w", err)
	}

	return s.issue(user)
}

// Login проверяет пароль и обновляет LastSeenAt
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	user, err := s.db.FindUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}

	if err := s.db.UpdateLastSeen(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("update last seen: %w", err)
	}
	user.LastSeenAt = time.Now().UTC()

	return s.issue(user)
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.db.GetUser(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, notFound("user")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *UserService) Profile(ctx context.Context, caller Caller) (*models.User, error) {
	return s.GetUser(ctx, caller.UserID)
}

// UpdateProfile применяет изменения профиля. Токен перевыпускается,
// так как в нём лежат email и имя.
func (s *UserService) UpdateProfile(ctx context.Context, caller Caller, in ProfileInput, image *multipart.FileHeader) (*AuthResult, error) {
	user, err := s.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	if in.FullName != nil {
		v := strings.TrimSpace(*in.FullName)
		in.FullName = &v
	}
	if in.Email != nil {
		v := normalizeEmail(*in.Email)
		in.Email = &v
	}
	if in.Interests != nil {
		v := normalizeInterests(*in.Interests)
		in.Interests = &v
		checkInterests(v, verr)
	}
	if err := checkStruct(in, verr); err != nil {
		return nil, err
	}
	if in.FullName != nil && *in.FullName == "" {
		verr.Add("fullName", "is required")
	}
	if in.Email != nil && *in.Email != user.Email {
		if !domainAllowed(*in.Email, s.allowedDomains) {
			verr.Add("email", "must be a university email address")
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if in.Email != nil && *in.Email != user.Email {
		taken, err := s.db.EmailTaken(ctx, *in.Email, user.ID)
		if err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return nil, fmt.Errorf("email already registered: %w", ErrConstraintViolation)
		}
		user.Email = *in.Email
	}
	if in.FullName != nil {
		user.FullName = *in.FullName
	}
	if in.Age != nil {
		user.Age = *in.Age
	}
	if in.Location != nil {
		user.Location = strings.TrimSpace(*in.Location)
	}
	if in.FieldOfStudy != nil {
		user.FieldOfStudy = strings.TrimSpace(*in.FieldOfStudy)
	}
	if in.Interests != nil {
		user.Interests = datatypes.JSONSlice[string](*in.Interests)
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	st := s.uploads.Stage()
	defer st.Rollback(ctx)

	var previousImage string
	if image != nil {
		ref, err := st.PutImage(ctx, ProfileImagesFolder, image)
		if err != nil {
			return nil, imageError("profileImage", err)
		}
		previousImage = user.ProfileImage
		user.ProfileImage = ref
	}

	if err := s.db.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicateKey) {
			return nil, fmt.Errorf("email already registered: %w", ErrConstraintViolation)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	st.Commit()

	if previousImage != "" {
		s.uploads.DeleteRefs(ctx, []string{previousImage})
	}

	return s.issue(user)
}

func (s *UserService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID.String(), user.Email, user.FullName)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func checkInterests(interests []string, verr *ValidationError) {
	if len(interests) > MaxInterests {
		verr.Add("interests", fmt.Sprintf("must have at most %d items", MaxInterests))
	}
	for _, s := range interests {
		if len([]rune(s)) > MaxInterestLength {
			verr.Add("interests", fmt.Sprintf("each item must be at most %d characters", MaxInterestLength))
			break
		}
	}
}
