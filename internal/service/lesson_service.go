package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type lessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id string) error
	ListAttendees(ctx context.Context, lessonID string) ([]models.SimpleUser, error)
	Attended(ctx context.Context, lessonID, studentID string) (bool, error)
}

type lessonGroupRepository interface {
	membershipChecker
	FindByID(ctx context.Context, id string) (*models.StudyGroup, error)
}

type lessonMarkRepository interface {
	ListByLesson(ctx context.Context, lessonID string) ([]models.MarkRow, error)
	MapByGroupStudent(ctx context.Context, groupID, studentID string) (map[string]float64, error)
}

type progressInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateLessonRequest carries the payload for creating a lesson. Date is an
// optional RFC3339-like string.
type CreateLessonRequest struct {
	Title string  `json:"title" validate:"required"`
	Date  *string `json:"date"`
}

// UpdateLessonRequest applies partial updates to a lesson.
type UpdateLessonRequest struct {
	Title *string `json:"title"`
	Date  *string `json:"date"`
}

// LessonService orchestrates lesson management. Unlike group endpoints,
// permission failures on an existing lesson surface as forbidden, a
// deliberate carry-over from the legacy API.
type LessonService struct {
	lessons   lessonRepository
	groups    lessonGroupRepository
	marks     lessonMarkRepository
	cache     progressInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs a LessonService instance.
func NewLessonService(lessons lessonRepository, groups lessonGroupRepository, marks lessonMarkRepository, cache progressInvalidator, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{lessons: lessons, groups: groups, marks: marks, cache: cache, validator: validate, logger: logger}
}

// List returns the group's lessons shaped for the caller: teachers get the
// full mark and attendance detail, students get their own standing only.
// The result is a slice of LessonView or StudentLessonView.
func (s *LessonService) List(ctx context.Context, userID, groupID string) (interface{}, error) {
	if _, err := s.groups.FindByID(ctx, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	access, err := resolveGroupAccess(ctx, s.groups, groupID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve access")
	}

	lessons, err := s.lessons.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}

	switch access {
	case AccessTeacher:
		views := make([]models.LessonView, 0, len(lessons))
		for i := range lessons {
			view, err := s.teacherView(ctx, &lessons[i])
			if err != nil {
				return nil, err
			}
			views = append(views, *view)
		}
		return views, nil
	case AccessStudent:
		return s.studentViews(ctx, groupID, userID, lessons)
	default:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "")
	}
}

// Create adds a lesson to the group. Non-teachers get not-found, matching
// the group endpoint convention.
func (s *LessonService) Create(ctx context.Context, userID, groupID string, req CreateLessonRequest) (*models.LessonView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "title is required")
	}

	if _, err := s.groups.FindByID(ctx, groupID); err != nil {
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

	lesson := &models.Lesson{GroupID: groupID, Title: req.Title}
	if req.Date != nil && *req.Date != "" {
		date, err := parseLessonDate(*req.Date)
		if err != nil {
			return nil, err
		}
		lesson.Date = date
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}

	s.invalidateProgress(ctx, groupID)
	return s.teacherView(ctx, lesson)
}

// Update applies partial changes to a lesson. A non-teacher caller is
// forbidden when the lesson exists.
func (s *LessonService) Update(ctx context.Context, userID, lessonID string, req UpdateLessonRequest) (*models.LessonView, error) {
	lesson, err := s.requireTeacherOfLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		lesson.Title = *req.Title
	}
	if req.Date != nil {
		if *req.Date == "" {
			lesson.Date = nil
		} else {
			date, err := parseLessonDate(*req.Date)
			if err != nil {
				return nil, err
			}
			lesson.Date = date
		}
	}
	if err := s.lessons.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}

	s.invalidateProgress(ctx, lesson.GroupID)
	return s.teacherView(ctx, lesson)
}

// Delete removes a lesson, cascading to its marks and attendance rows.
func (s *LessonService) Delete(ctx context.Context, userID, lessonID string) error {
	lesson, err := s.requireTeacherOfLesson(ctx, userID, lessonID)
	if err != nil {
		return err
	}
	if err := s.lessons.Delete(ctx, lessonID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	s.invalidateProgress(ctx, lesson.GroupID)
	s.logger.Info("lesson deleted", zap.String("lesson_id", lessonID), zap.String("user_id", userID))
	return nil
}

func (s *LessonService) requireTeacherOfLesson(ctx context.Context, userID, lessonID string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	teaches, err := s.groups.IsTeacher(ctx, lesson.GroupID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !teaches {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return lesson, nil
}

func (s *LessonService) teacherView(ctx context.Context, lesson *models.Lesson) (*models.LessonView, error) {
	markRows, err := s.marks.ListByLesson(ctx, lesson.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lesson marks")
	}
	attendees, err := s.lessons.ListAttendees(ctx, lesson.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendees")
	}

	marks := make([]models.MarkView, 0, len(markRows))
	for _, row := range markRows {
		marks = append(marks, row.View())
	}
	if attendees == nil {
		attendees = []models.SimpleUser{}
	}
	return &models.LessonView{
		ID:          lesson.ID,
		Title:       lesson.Title,
		Date:        lesson.Date,
		Group:       lesson.GroupID,
		Marks:       marks,
		Attendances: attendees,
	}, nil
}

func (s *LessonService) studentViews(ctx context.Context, groupID, userID string, lessons []models.Lesson) ([]models.StudentLessonView, error) {
	marks, err := s.marks.MapByGroupStudent(ctx, groupID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch marks")
	}

	views := make([]models.StudentLessonView, 0, len(lessons))
	for _, lesson := range lessons {
		attended, err := s.lessons.Attended(ctx, lesson.ID, userID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
		}
		view := models.StudentLessonView{
			ID:         lesson.ID,
			Title:      lesson.Title,
			Date:       lesson.Date,
			Group:      lesson.GroupID,
			Attendance: attended,
		}
		if value, ok := marks[lesson.ID]; ok {
			v := value
			view.Mark = &v
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *LessonService) invalidateProgress(ctx context.Context, groupID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, progressCachePattern(groupID)); err != nil {
		s.logger.Warn("failed to invalidate progress cache", zap.String("group_id", groupID), zap.Error(err))
	}
}

func progressCacheKey(groupID, email string) string {
	return fmt.Sprintf("progress:group:%s:%s", groupID, email)
}

func progressCachePattern(groupID string) string {
	return fmt.Sprintf("progress:group:%s:*", groupID)
}

var lessonDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseLessonDate accepts the ISO-like date formats the legacy clients send.
func parseLessonDate(raw string) (*time.Time, error) {
	for _, layout := range lessonDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format")
}
