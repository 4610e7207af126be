package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type userAccountRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type userGroupRepository interface {
	groupViewRepository
	ListByStudent(ctx context.Context, userID string) ([]models.StudyGroup, error)
	ListByTeacher(ctx context.Context, userID string) ([]models.StudyGroup, error)
}

// UserService provides current-user profile use cases.
type UserService struct {
	users     userAccountRepository
	groups    userGroupRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(users userAccountRepository, groups userGroupRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, groups: groups, validator: validate, logger: logger}
}

// Profile returns the full profile of a user including both group
// membership directions.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	studying, err := s.groups.ListByStudent(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list studying groups")
	}
	teaching, err := s.groups.ListByTeacher(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teaching groups")
	}

	studyingViews, err := buildGroupViews(ctx, s.groups, studying)
	if err != nil {
		return nil, err
	}
	teachingViews, err := buildGroupViews(ctx, s.groups, teaching)
	if err != nil {
		return nil, err
	}

	return &models.Profile{
		ID:             user.ID,
		Email:          user.Email,
		Name:           user.Name,
		Role:           user.Role,
		LastLogin:      user.LastLogin,
		StudyingGroups: studyingViews,
		TeachingGroups: teachingViews,
	}, nil
}

// UpdateProfile applies the supplied fields to the current user. Absent or
// empty fields are left untouched, and an invalid role value is silently
// ignored rather than rejected, matching the legacy API. The returned
// string echoes the new plaintext password when one was supplied.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.Profile, string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.Name != nil && *req.Name != "" {
		user.Name = *req.Name
	}
	if req.Role != nil {
		if role := models.UserRole(*req.Role); role.Valid() {
			user.Role = role
		}
	}
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	echo := ""
	if req.Password != nil && *req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		if err := s.users.UpdatePassword(ctx, userID, string(hash), time.Now().UTC()); err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
		}
		echo = *req.Password
		s.logger.Info("password rotated", zap.String("user_id", userID))
	}

	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return profile, echo, nil
}
