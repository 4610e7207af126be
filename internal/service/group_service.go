package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type groupViewRepository interface {
	ListStudents(ctx context.Context, groupID string) ([]models.SimpleUser, error)
	ListTeachers(ctx context.Context, groupID string) ([]models.SimpleUser, error)
	ListLessonIDs(ctx context.Context, groupID string) ([]string, error)
}

type groupRepository interface {
	groupViewRepository
	membershipChecker
	FindByID(ctx context.Context, id string) (*models.StudyGroup, error)
	Create(ctx context.Context, group *models.StudyGroup, creatorID string) error
	Update(ctx context.Context, group *models.StudyGroup) error
	Delete(ctx context.Context, id string) error
	ListByStudent(ctx context.Context, userID string) ([]models.StudyGroup, error)
	ListByTeacher(ctx context.Context, userID string) ([]models.StudyGroup, error)
	AddStudent(ctx context.Context, groupID, userID string) error
	AddTeacher(ctx context.Context, groupID, userID string) error
}

type userFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// CreateGroupRequest carries the payload for creating a study group.
type CreateGroupRequest struct {
	GroupTitle   string `json:"group_title" validate:"required"`
	SubjectTitle string `json:"subject_title" validate:"required"`
}

// UpdateGroupRequest applies partial title updates to a group.
type UpdateGroupRequest struct {
	GroupTitle   *string `json:"group_title"`
	SubjectTitle *string `json:"subject_title"`
}

// AddMemberRequest resolves the target user of a membership change by email.
type AddMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// GroupService orchestrates study group management. Permission failures on
// group endpoints surface as not-found rather than forbidden so that group
// existence is not leaked to non-members.
type GroupService struct {
	groups    groupRepository
	users     userFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService constructs a GroupService instance.
func NewGroupService(groups groupRepository, users userFinder, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{groups: groups, users: users, validator: validate, logger: logger}
}

// ListMine returns the groups visible to the caller: studying groups for
// students, teaching groups for teachers. Any other stored role value is
// denied with not-found.
func (s *GroupService) ListMine(ctx context.Context, userID string, role models.UserRole) ([]models.GroupView, error) {
	var (
		groups []models.StudyGroup
		err    error
	)
	switch role {
	case models.RoleStudent:
		groups, err = s.groups.ListByStudent(ctx, userID)
	case models.RoleTeacher:
		groups, err = s.groups.ListByTeacher(ctx, userID)
	default:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return buildGroupViews(ctx, s.groups, groups)
}

// Create creates a group and registers the caller in its teacher set.
func (s *GroupService) Create(ctx context.Context, userID string, req CreateGroupRequest) (*models.GroupView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "group_title and subject_title are required")
	}

	group := &models.StudyGroup{GroupTitle: req.GroupTitle, SubjectTitle: req.SubjectTitle}
	if err := s.groups.Create(ctx, group, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}

	s.logger.Info("group created", zap.String("group_id", group.ID), zap.String("creator_id", userID))
	return s.view(ctx, group)
}

// Update applies partial title changes. Only teachers of the group may
// update it; everyone else gets not-found.
func (s *GroupService) Update(ctx context.Context, userID, groupID string, req UpdateGroupRequest) (*models.GroupView, error) {
	group, err := s.requireTeacher(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	if req.GroupTitle != nil {
		group.GroupTitle = *req.GroupTitle
	}
	if req.SubjectTitle != nil {
		group.SubjectTitle = *req.SubjectTitle
	}
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update group")
	}
	return s.view(ctx, group)
}

// Delete removes the group and cascades to its lessons and marks.
func (s *GroupService) Delete(ctx context.Context, userID, groupID string) error {
	if _, err := s.requireTeacher(ctx, userID, groupID); err != nil {
		return err
	}
	if err := s.groups.Delete(ctx, groupID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	s.logger.Info("group deleted", zap.String("group_id", groupID), zap.String("user_id", userID))
	return nil
}

// AddStudent resolves a user by email and adds them to the group's student
// set. A missing target user is forbidden, an existing membership or a
// non-teacher caller is not-found, both kept from the legacy API.
func (s *GroupService) AddStudent(ctx context.Context, userID, groupID string, req AddMemberRequest) (*models.GroupView, error) {
	return s.addMember(ctx, userID, groupID, req, s.groups.IsStudent, s.groups.AddStudent)
}

// AddTeacher resolves a user by email and adds them to the group's teacher set.
func (s *GroupService) AddTeacher(ctx context.Context, userID, groupID string, req AddMemberRequest) (*models.GroupView, error) {
	return s.addMember(ctx, userID, groupID, req, s.groups.IsTeacher, s.groups.AddTeacher)
}

type membershipFn func(ctx context.Context, groupID, userID string) (bool, error)

func (s *GroupService) addMember(ctx context.Context, userID, groupID string, req AddMemberRequest, isMember membershipFn, add func(ctx context.Context, groupID, userID string) error) (*models.GroupView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "email is required")
	}

	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	target, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no user with this email")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user")
	}

	already, err := isMember(ctx, groupID, target.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	callerTeaches, err := s.groups.IsTeacher(ctx, groupID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check caller membership")
	}
	if already || !callerTeaches {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "")
	}

	if err := add(ctx, groupID, target.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add member")
	}
	return s.view(ctx, group)
}

// requireTeacher loads the group and verifies teacher membership, mapping
// both a missing group and a permission failure to not-found.
func (s *GroupService) requireTeacher(ctx context.Context, userID, groupID string) (*models.StudyGroup, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	teaches, err := s.groups.IsTeacher(ctx, groupID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !teaches {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "")
	}
	return group, nil
}

func (s *GroupService) view(ctx context.Context, group *models.StudyGroup) (*models.GroupView, error) {
	views, err := buildGroupViews(ctx, s.groups, []models.StudyGroup{*group})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// buildGroupViews shapes group rows into API views with membership sets
// and lesson identifiers.
func buildGroupViews(ctx context.Context, repo groupViewRepository, groups []models.StudyGroup) ([]models.GroupView, error) {
	views := make([]models.GroupView, 0, len(groups))
	for _, g := range groups {
		students, err := repo.ListStudents(ctx, g.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group students")
		}
		teachers, err := repo.ListTeachers(ctx, g.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group teachers")
		}
		lessons, err := repo.ListLessonIDs(ctx, g.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group lessons")
		}
		if students == nil {
			students = []models.SimpleUser{}
		}
		if teachers == nil {
			teachers = []models.SimpleUser{}
		}
		if lessons == nil {
			lessons = []string{}
		}
		views = append(views, models.GroupView{
			ID:           g.ID,
			GroupTitle:   g.GroupTitle,
			SubjectTitle: g.SubjectTitle,
			Students:     students,
			Teachers:     teachers,
			Lessons:      lessons,
		})
	}
	return views, nil
}
