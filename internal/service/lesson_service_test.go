package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type mockLessonRepo struct {
	lessons   map[string]*models.Lesson
	byGroup   map[string][]models.Lesson
	attendees map[string][]models.SimpleUser
	attended  map[string]map[string]bool
	deleted   []string
}

func newMockLessonRepo() *mockLessonRepo {
	return &mockLessonRepo{
		lessons:   make(map[string]*models.Lesson),
		byGroup:   make(map[string][]models.Lesson),
		attendees: make(map[string][]models.SimpleUser),
		attended:  make(map[string]map[string]bool),
	}
}

func (m *mockLessonRepo) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, ok := m.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *lesson
	return &clone, nil
}

func (m *mockLessonRepo) ListByGroup(ctx context.Context, groupID string) ([]models.Lesson, error) {
	return m.byGroup[groupID], nil
}

func (m *mockLessonRepo) Create(ctx context.Context, lesson *models.Lesson) error {
	lesson.ID = "l-new"
	m.lessons[lesson.ID] = lesson
	m.byGroup[lesson.GroupID] = append(m.byGroup[lesson.GroupID], *lesson)
	return nil
}

func (m *mockLessonRepo) Update(ctx context.Context, lesson *models.Lesson) error {
	m.lessons[lesson.ID] = lesson
	return nil
}

func (m *mockLessonRepo) Delete(ctx context.Context, id string) error {
	delete(m.lessons, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockLessonRepo) ListAttendees(ctx context.Context, lessonID string) ([]models.SimpleUser, error) {
	return m.attendees[lessonID], nil
}

func (m *mockLessonRepo) Attended(ctx context.Context, lessonID, studentID string) (bool, error) {
	return m.attended[lessonID][studentID], nil
}

type mockLessonGroups struct {
	groups   map[string]*models.StudyGroup
	teachers map[string][]string
	students map[string][]string
}

func (m *mockLessonGroups) FindByID(ctx context.Context, id string) (*models.StudyGroup, error) {
	group, ok := m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return group, nil
}

func (m *mockLessonGroups) IsTeacher(ctx context.Context, groupID, userID string) (bool, error) {
	return contains(m.teachers[groupID], userID), nil
}

func (m *mockLessonGroups) IsStudent(ctx context.Context, groupID, userID string) (bool, error) {
	return contains(m.students[groupID], userID), nil
}

type mockLessonMarks struct {
	byLesson map[string][]models.MarkRow
	byGroup  map[string]map[string]float64
}

func (m *mockLessonMarks) ListByLesson(ctx context.Context, lessonID string) ([]models.MarkRow, error) {
	return m.byLesson[lessonID], nil
}

func (m *mockLessonMarks) MapByGroupStudent(ctx context.Context, groupID, studentID string) (map[string]float64, error) {
	return m.byGroup[groupID], nil
}

type mockInvalidator struct {
	patterns []string
}

func (m *mockInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func lessonFixture() (*mockLessonRepo, *mockLessonGroups, *mockLessonMarks, *mockInvalidator) {
	lessons := newMockLessonRepo()
	groups := &mockLessonGroups{
		groups:   map[string]*models.StudyGroup{"g1": {ID: "g1", GroupTitle: "11-A", SubjectTitle: "Math"}},
		teachers: map[string][]string{"g1": {"t1"}},
		students: map[string][]string{"g1": {"s1"}},
	}
	marks := &mockLessonMarks{
		byLesson: map[string][]models.MarkRow{},
		byGroup:  map[string]map[string]float64{},
	}
	return lessons, groups, marks, &mockInvalidator{}
}

func TestLessonServiceListTeacherView(t *testing.T) {
	lessons, groups, marks, inv := lessonFixture()
	lessons.lessons["l1"] = &models.Lesson{ID: "l1", GroupID: "g1", Title: "Algebra"}
	lessons.byGroup["g1"] = []models.Lesson{*lessons.lessons["l1"]}
	marks.byLesson["l1"] = []models.MarkRow{{ID: "m1", LessonID: "l1", StudentID: "s1", Value: 5, StudentEmail: "s1@example.com", StudentName: "Student"}}
	lessons.attendees["l1"] = []models.SimpleUser{{ID: "s1", Email: "s1@example.com", Name: "Student"}}
	svc := NewLessonService(lessons, groups, marks, inv, validator.New(), zap.NewNop())

	out, err := svc.List(context.Background(), "t1", "g1")
	require.NoError(t, err)
	views, ok := out.([]models.LessonView)
	require.True(t, ok)
	require.Len(t, views, 1)
	require.Len(t, views[0].Marks, 1)
	assert.Equal(t, "s1", views[0].Marks[0].Student.ID)
	require.Len(t, views[0].Attendances, 1)
}

func TestLessonServiceListStudentView(t *testing.T) {
	lessons, groups, marks, inv := lessonFixture()
	lessons.lessons["l1"] = &models.Lesson{ID: "l1", GroupID: "g1", Title: "Algebra"}
	lessons.byGroup["g1"] = []models.Lesson{*lessons.lessons["l1"]}
	marks.byGroup["g1"] = map[string]float64{"l1": 4}
	lessons.attended["l1"] = map[string]bool{"s1": true}
	svc := NewLessonService(lessons, groups, marks, inv, validator.New(), zap.NewNop())

	out, err := svc.List(context.Background(), "s1", "g1")
	require.NoError(t, err)
	views, ok := out.([]models.StudentLessonView)
	require.True(t, ok)
	require.Len(t, views, 1)
	assert.True(t, views[0].Attendance)
	require.NotNil(t, views[0].Mark)
	assert.Equal(t, 4.0, *views[0].Mark)
}

func TestLessonServiceListNonMemberIsNotFound(t *testing.T) {
	lessons, groups, marks, inv := lessonFixture()
	svc := NewLessonService(lessons, groups, marks, inv, validator.New(), zap.NewNop())

	_, err := svc.List(context.Background(), "outsider", "g1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceCreateByNonTeacherIsNotFound(t *testing.T) {
	lessons, groups, marks, inv := lessonFixture()
	svc := NewLessonService(lessons, groups, marks, inv, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "s1", "g1", CreateLessonRequest{Title: "Algebra"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceCreateParsesDateAndInvalidatesCache(t *testing.T) {
	lessons, groups, marks, inv := lessonFixture()
	svc := NewLessonService(lessons, groups, marks, inv, validator.New(), zap.NewNop())

	date := "2026-02-10"
	view, err := svc.Create(context.Background(), "t1", "g1", CreateLessonRequest{Title: "Algebra", Date: &date})
	require.NoError(t, err)
	require.NotNil(t, view.Date)
	assert.Equal(t, 2026, view.Date.Year())
	assert.Equal(t, []string{"progress:group:g1:*"}, inv.patterns)
}

func TestLessonServiceCreateRejectsBadDate(t *testing.T) {
	lessons, groups, marks, inv := lessonFixture()
	svc := NewLessonService(lessons, groups, marks, inv, validator.New(), zap.NewNop())

	date := "next tuesday"
	_, err := svc.Create(context.Background(), "t1", "g1", CreateLessonRequest{Title: "Algebra", Date: &date})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceUpdateByNonTeacherIsForbidden(t *testing.T) {
	lessons, groups, marks, inv := lessonFixture()
	lessons.lessons["l1"] = &models.Lesson{ID: "l1", GroupID: "g1", Title: "Algebra"}
	svc := NewLessonService(lessons, groups, marks, inv, validator.New(), zap.NewNop())

	title := "Geometry"
	_, err := svc.Update(context.Background(), "s1", "l1", UpdateLessonRequest{Title: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceDeleteInvalidatesCache(t *testing.T) {
	lessons, groups, marks, inv := lessonFixture()
	lessons.lessons["l1"] = &models.Lesson{ID: "l1", GroupID: "g1", Title: "Algebra"}
	svc := NewLessonService(lessons, groups, marks, inv, validator.New(), zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "t1", "l1"))
	assert.Equal(t, []string{"l1"}, lessons.deleted)
	assert.Equal(t, []string{"progress:group:g1:*"}, inv.patterns)
}
