package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/export"
)

type markRepository interface {
	Upsert(ctx context.Context, mark *models.Mark) error
	FindByLessonStudent(ctx context.Context, lessonID, studentID string) (*models.Mark, error)
	DeleteByLessonStudent(ctx context.Context, lessonID, studentID string) error
	ListByLesson(ctx context.Context, lessonID string) ([]models.MarkRow, error)
	MapByGroupStudent(ctx context.Context, groupID, studentID string) (map[string]float64, error)
}

type markLessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Lesson, error)
	AddAttendance(ctx context.Context, lessonID, studentID string) error
	RemoveAttendance(ctx context.Context, lessonID, studentID string) error
	Attended(ctx context.Context, lessonID, studentID string) (bool, error)
	AttendeeIDs(ctx context.Context, lessonID string) ([]string, error)
}

type markGroupRepository interface {
	membershipChecker
	FindByID(ctx context.Context, id string) (*models.StudyGroup, error)
	ListStudents(ctx context.Context, groupID string) ([]models.SimpleUser, error)
	FindStudentByEmail(ctx context.Context, groupID, email string) (*models.User, error)
}

type userResolver interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type progressCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// UpsertMarkRequest carries a grade entry for one student on one lesson.
type UpsertMarkRequest struct {
	Student string   `json:"student" validate:"required"`
	Mark    *float64 `json:"mark" validate:"required"`
}

// DeleteMarkRequest identifies the student whose mark is removed.
type DeleteMarkRequest struct {
	Student string `json:"student" validate:"required"`
}

// AttendanceRequest toggles a student's presence on a lesson.
type AttendanceRequest struct {
	Student    string `json:"student" validate:"required"`
	Attendance *bool  `json:"attendance" validate:"required"`
}

// MarkService orchestrates marks, attendance and per-student progress.
// Every mutation requires teacher membership of the lesson's owning group
// and surfaces forbidden otherwise, matching the lesson endpoint
// convention.
type MarkService struct {
	marks       markRepository
	lessons     markLessonRepository
	groups      markGroupRepository
	users       userResolver
	cache       progressCache
	metrics     cacheObserver
	progressTTL time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewMarkService constructs a MarkService instance.
func NewMarkService(marks markRepository, lessons markLessonRepository, groups markGroupRepository, users userResolver, cache progressCache, metrics cacheObserver, progressTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *MarkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkService{
		marks:       marks,
		lessons:     lessons,
		groups:      groups,
		users:       users,
		cache:       cache,
		metrics:     metrics,
		progressTTL: progressTTL,
		validator:   validate,
		logger:      logger,
	}
}

// Upsert records the mark for a (lesson, student) pair, replacing any
// existing value atomically.
func (s *MarkService) Upsert(ctx context.Context, userID, lessonID string, req UpsertMarkRequest) (*models.MarkView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student and mark are required")
	}

	lesson, err := s.requireTeacherOfLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	student, err := s.users.FindByID(ctx, req.Student)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	mark := &models.Mark{LessonID: lessonID, StudentID: student.ID, Value: *req.Mark}
	if err := s.marks.Upsert(ctx, mark); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert mark")
	}

	s.invalidateProgress(ctx, lesson.GroupID)

	stored, err := s.marks.FindByLessonStudent(ctx, lessonID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mark")
	}
	return &models.MarkView{
		ID:      stored.ID,
		Student: student.Simple(),
		Lesson:  lessonID,
		Mark:    stored.Value,
	}, nil
}

// Delete removes every mark for the (lesson, student) pair.
func (s *MarkService) Delete(ctx context.Context, userID, lessonID string, req DeleteMarkRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student is required")
	}

	lesson, err := s.requireTeacherOfLesson(ctx, userID, lessonID)
	if err != nil {
		return err
	}

	if err := s.marks.DeleteByLessonStudent(ctx, lessonID, req.Student); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete mark")
	}
	s.invalidateProgress(ctx, lesson.GroupID)
	return nil
}

// SetAttendance adds or removes the student from the lesson's attendance
// set depending on the flag. Both directions are idempotent.
func (s *MarkService) SetAttendance(ctx context.Context, userID, lessonID string, req AttendanceRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student and attendance are required")
	}

	lesson, err := s.requireTeacherOfLesson(ctx, userID, lessonID)
	if err != nil {
		return err
	}

	if _, err := s.users.FindByID(ctx, req.Student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	if *req.Attendance {
		err = s.lessons.AddAttendance(ctx, lessonID, req.Student)
	} else {
		err = s.lessons.RemoveAttendance(ctx, lessonID, req.Student)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set attendance")
	}
	s.invalidateProgress(ctx, lesson.GroupID)
	return nil
}

// LessonStudents returns every student of the lesson's owning group with
// their attendance flag and mark. The legacy API applied no permission
// check here; this port requires teacher membership.
func (s *MarkService) LessonStudents(ctx context.Context, userID, lessonID string) ([]models.StudentStatusView, error) {
	lesson, err := s.requireTeacherOfLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	students, err := s.groups.ListStudents(ctx, lesson.GroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group students")
	}
	markRows, err := s.marks.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lesson marks")
	}
	attendeeIDs, err := s.lessons.AttendeeIDs(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendees")
	}

	marksByStudent := make(map[string]float64, len(markRows))
	for _, row := range markRows {
		marksByStudent[row.StudentID] = row.Value
	}
	attended := make(map[string]struct{}, len(attendeeIDs))
	for _, id := range attendeeIDs {
		attended[id] = struct{}{}
	}

	views := make([]models.StudentStatusView, 0, len(students))
	for _, student := range students {
		view := models.StudentStatusView{ID: student.ID, Email: student.Email, Name: student.Name}
		_, view.Attendance = attended[student.ID]
		if value, ok := marksByStudent[student.ID]; ok {
			v := value
			view.Mark = &v
		}
		views = append(views, view)
	}
	return views, nil
}

// StudentProgress returns, for every lesson of the group, the named
// student's attendance flag and mark. Caller must teach the group and the
// student must be a member, otherwise forbidden.
func (s *MarkService) StudentProgress(ctx context.Context, userID, groupID, email string) ([]models.StudentLessonView, error) {
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
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}

	student, err := s.groups.FindStudentByEmail(ctx, groupID, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not a member of this group")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	if s.cache != nil {
		start := time.Now()
		var cached []models.StudentLessonView
		err := s.cache.Get(ctx, progressCacheKey(groupID, email), &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("progress cache read failed", zap.Error(err))
		}
	}

	lessons, err := s.lessons.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	marks, err := s.marks.MapByGroupStudent(ctx, groupID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch marks")
	}

	views := make([]models.StudentLessonView, 0, len(lessons))
	for _, lesson := range lessons {
		attendedLesson, err := s.lessons.Attended(ctx, lesson.ID, student.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
		}
		view := models.StudentLessonView{
			ID:         lesson.ID,
			Title:      lesson.Title,
			Date:       lesson.Date,
			Group:      lesson.GroupID,
			Attendance: attendedLesson,
		}
		if value, ok := marks[lesson.ID]; ok {
			v := value
			view.Mark = &v
		}
		views = append(views, view)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, progressCacheKey(groupID, email), views, s.progressTTL); err != nil {
			s.logger.Warn("progress cache write failed", zap.Error(err))
		}
	}
	return views, nil
}

// ExportStudentProgress renders the progress report as CSV or PDF bytes
// and returns the content type and suggested filename alongside.
func (s *MarkService) ExportStudentProgress(ctx context.Context, userID, groupID, email, format string) ([]byte, string, string, error) {
	views, err := s.StudentProgress(ctx, userID, groupID, email)
	if err != nil {
		return nil, "", "", err
	}

	dataset := export.Dataset{Headers: []string{"lesson", "date", "attendance", "mark"}}
	for _, view := range views {
		row := map[string]string{
			"lesson":     view.Title,
			"attendance": strconv.FormatBool(view.Attendance),
		}
		if view.Date != nil {
			row["date"] = view.Date.Format(time.RFC3339)
		}
		if view.Mark != nil {
			row["mark"] = strconv.FormatFloat(*view.Mark, 'f', -1, 64)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", fmt.Sprintf("progress-%s.csv", email), nil
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, fmt.Sprintf("student progress %s", email))
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", fmt.Sprintf("progress-%s.pdf", email), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *MarkService) requireTeacherOfLesson(ctx context.Context, userID, lessonID string) (*models.Lesson, error) {
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

func (s *MarkService) invalidateProgress(ctx context.Context, groupID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, progressCachePattern(groupID)); err != nil {
		s.logger.Warn("failed to invalidate progress cache", zap.String("group_id", groupID), zap.Error(err))
	}
}
