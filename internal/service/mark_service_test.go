package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type mockMarkRepo struct {
	marks    map[string]*models.Mark
	byLesson map[string][]models.MarkRow
	byGroup  map[string]map[string]float64
	deleted  []string
}

func markKey(lessonID, studentID string) string {
	return lessonID + ":" + studentID
}

func newMockMarkRepo() *mockMarkRepo {
	return &mockMarkRepo{
		marks:    make(map[string]*models.Mark),
		byLesson: make(map[string][]models.MarkRow),
		byGroup:  make(map[string]map[string]float64),
	}
}

func (m *mockMarkRepo) Upsert(ctx context.Context, mark *models.Mark) error {
	key := markKey(mark.LessonID, mark.StudentID)
	if existing, ok := m.marks[key]; ok {
		existing.Value = mark.Value
		return nil
	}
	if mark.ID == "" {
		mark.ID = "m-new"
	}
	m.marks[key] = mark
	return nil
}

func (m *mockMarkRepo) FindByLessonStudent(ctx context.Context, lessonID, studentID string) (*models.Mark, error) {
	mark, ok := m.marks[markKey(lessonID, studentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return mark, nil
}

func (m *mockMarkRepo) DeleteByLessonStudent(ctx context.Context, lessonID, studentID string) error {
	delete(m.marks, markKey(lessonID, studentID))
	m.deleted = append(m.deleted, markKey(lessonID, studentID))
	return nil
}

func (m *mockMarkRepo) ListByLesson(ctx context.Context, lessonID string) ([]models.MarkRow, error) {
	return m.byLesson[lessonID], nil
}

func (m *mockMarkRepo) MapByGroupStudent(ctx context.Context, groupID, studentID string) (map[string]float64, error) {
	return m.byGroup[groupID], nil
}

type mockMarkLessons struct {
	lessons     map[string]*models.Lesson
	byGroup     map[string][]models.Lesson
	attended    map[string]map[string]bool
	attendeeIDs map[string][]string
}

func newMockMarkLessons() *mockMarkLessons {
	return &mockMarkLessons{
		lessons:     make(map[string]*models.Lesson),
		byGroup:     make(map[string][]models.Lesson),
		attended:    make(map[string]map[string]bool),
		attendeeIDs: make(map[string][]string),
	}
}

func (m *mockMarkLessons) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, ok := m.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return lesson, nil
}

func (m *mockMarkLessons) ListByGroup(ctx context.Context, groupID string) ([]models.Lesson, error) {
	return m.byGroup[groupID], nil
}

func (m *mockMarkLessons) AddAttendance(ctx context.Context, lessonID, studentID string) error {
	if m.attended[lessonID] == nil {
		m.attended[lessonID] = make(map[string]bool)
	}
	m.attended[lessonID][studentID] = true
	m.attendeeIDs[lessonID] = append(m.attendeeIDs[lessonID], studentID)
	return nil
}

func (m *mockMarkLessons) RemoveAttendance(ctx context.Context, lessonID, studentID string) error {
	delete(m.attended[lessonID], studentID)
	var kept []string
	for _, id := range m.attendeeIDs[lessonID] {
		if id != studentID {
			kept = append(kept, id)
		}
	}
	m.attendeeIDs[lessonID] = kept
	return nil
}

func (m *mockMarkLessons) Attended(ctx context.Context, lessonID, studentID string) (bool, error) {
	return m.attended[lessonID][studentID], nil
}

func (m *mockMarkLessons) AttendeeIDs(ctx context.Context, lessonID string) ([]string, error) {
	return m.attendeeIDs[lessonID], nil
}

type mockMarkGroups struct {
	groups   map[string]*models.StudyGroup
	teachers map[string][]string
	students map[string][]string
	profiles map[string]*models.User
}

func (m *mockMarkGroups) FindByID(ctx context.Context, id string) (*models.StudyGroup, error) {
	group, ok := m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return group, nil
}

func (m *mockMarkGroups) IsTeacher(ctx context.Context, groupID, userID string) (bool, error) {
	return contains(m.teachers[groupID], userID), nil
}

func (m *mockMarkGroups) IsStudent(ctx context.Context, groupID, userID string) (bool, error) {
	return contains(m.students[groupID], userID), nil
}

func (m *mockMarkGroups) ListStudents(ctx context.Context, groupID string) ([]models.SimpleUser, error) {
	var out []models.SimpleUser
	for _, id := range m.students[groupID] {
		if user, ok := m.profiles[id]; ok {
			out = append(out, user.Simple())
			continue
		}
		out = append(out, models.SimpleUser{ID: id})
	}
	return out, nil
}

func (m *mockMarkGroups) FindStudentByEmail(ctx context.Context, groupID, email string) (*models.User, error) {
	for _, id := range m.students[groupID] {
		if user, ok := m.profiles[id]; ok && user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockUserResolver struct {
	users map[string]*models.User
}

func (m *mockUserResolver) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type stubCache struct {
	values   map[string][]models.StudentLessonView
	sets     []string
	deletes  []string
	getCalls int
}

func (s *stubCache) Get(ctx context.Context, key string, dest interface{}) error {
	s.getCalls++
	views, ok := s.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	out, ok := dest.(*[]models.StudentLessonView)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*out = views
	return nil
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.values == nil {
		s.values = make(map[string][]models.StudentLessonView)
	}
	if views, ok := value.([]models.StudentLessonView); ok {
		s.values[key] = views
	}
	s.sets = append(s.sets, key)
	return nil
}

func (s *stubCache) DeleteByPattern(ctx context.Context, pattern string) error {
	s.deletes = append(s.deletes, pattern)
	return nil
}

type stubObserver struct {
	hits   int
	misses int
}

func (s *stubObserver) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

func markFixture() (*mockMarkRepo, *mockMarkLessons, *mockMarkGroups, *mockUserResolver, *stubCache) {
	marks := newMockMarkRepo()
	lessons := newMockMarkLessons()
	lessons.lessons["l1"] = &models.Lesson{ID: "l1", GroupID: "g1", Title: "Algebra"}
	lessons.byGroup["g1"] = []models.Lesson{*lessons.lessons["l1"]}
	student := &models.User{ID: "s1", Email: "s1@example.com", Name: "Student", Role: models.RoleStudent}
	groups := &mockMarkGroups{
		groups:   map[string]*models.StudyGroup{"g1": {ID: "g1", GroupTitle: "11-A", SubjectTitle: "Math"}},
		teachers: map[string][]string{"g1": {"t1"}},
		students: map[string][]string{"g1": {"s1"}},
		profiles: map[string]*models.User{"s1": student},
	}
	users := &mockUserResolver{users: map[string]*models.User{"s1": student, "t1": {ID: "t1", Role: models.RoleTeacher}}}
	return marks, lessons, groups, users, &stubCache{}
}

func newMarkService(marks *mockMarkRepo, lessons *mockMarkLessons, groups *mockMarkGroups, users *mockUserResolver, cache *stubCache, metrics cacheObserver) *MarkService {
	return NewMarkService(marks, lessons, groups, users, cache, metrics, time.Minute, validator.New(), zap.NewNop())
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func TestMarkServiceUpsertReplacesValue(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	first, err := svc.Upsert(context.Background(), "t1", "l1", UpsertMarkRequest{Student: "s1", Mark: floatPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, first.Mark)

	second, err := svc.Upsert(context.Background(), "t1", "l1", UpsertMarkRequest{Student: "s1", Mark: floatPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5.0, second.Mark)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"progress:group:g1:*", "progress:group:g1:*"}, cache.deletes)
}

func TestMarkServiceUpsertByNonTeacherIsForbidden(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	_, err := svc.Upsert(context.Background(), "s1", "l1", UpsertMarkRequest{Student: "s1", Mark: floatPtr(4)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkServiceUpsertUnknownStudentIsNotFound(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	_, err := svc.Upsert(context.Background(), "t1", "l1", UpsertMarkRequest{Student: "ghost", Mark: floatPtr(4)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestMarkServiceSetAttendanceToggle(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	require.NoError(t, svc.SetAttendance(context.Background(), "t1", "l1", AttendanceRequest{Student: "s1", Attendance: boolPtr(true)}))
	attended, _ := lessons.Attended(context.Background(), "l1", "s1")
	assert.True(t, attended)

	require.NoError(t, svc.SetAttendance(context.Background(), "t1", "l1", AttendanceRequest{Student: "s1", Attendance: boolPtr(false)}))
	attended, _ = lessons.Attended(context.Background(), "l1", "s1")
	assert.False(t, attended)
}

func TestMarkServiceLessonStudents(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	marks.byLesson["l1"] = []models.MarkRow{{ID: "m1", LessonID: "l1", StudentID: "s1", Value: 5, StudentEmail: "s1@example.com", StudentName: "Student"}}
	lessons.attendeeIDs["l1"] = []string{"s1"}
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	views, err := svc.LessonStudents(context.Background(), "t1", "l1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Attendance)
	require.NotNil(t, views[0].Mark)
	assert.Equal(t, 5.0, *views[0].Mark)
}

func TestMarkServiceLessonStudentsByNonTeacherIsForbidden(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	_, err := svc.LessonStudents(context.Background(), "s1", "l1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkServiceStudentProgress(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	marks.byGroup["g1"] = map[string]float64{"l1": 4}
	lessons.attended["l1"] = map[string]bool{"s1": true}
	observer := &stubObserver{}
	svc := newMarkService(marks, lessons, groups, users, cache, observer)

	views, err := svc.StudentProgress(context.Background(), "t1", "g1", "s1@example.com")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Attendance)
	require.NotNil(t, views[0].Mark)
	assert.Equal(t, 4.0, *views[0].Mark)
	assert.Equal(t, 1, observer.misses)
	assert.Equal(t, []string{"progress:group:g1:s1@example.com"}, cache.sets)

	cached, err := svc.StudentProgress(context.Background(), "t1", "g1", "s1@example.com")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, 1, observer.hits)
}

func TestMarkServiceStudentProgressByNonTeacherIsForbidden(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	_, err := svc.StudentProgress(context.Background(), "s1", "g1", "s1@example.com")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkServiceStudentProgressOutsiderStudentIsForbidden(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	_, err := svc.StudentProgress(context.Background(), "t1", "g1", "outsider@example.com")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkServiceExportStudentProgressCSV(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	marks.byGroup["g1"] = map[string]float64{"l1": 4}
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	payload, contentType, filename, err := svc.ExportStudentProgress(context.Background(), "t1", "g1", "s1@example.com", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Equal(t, "progress-s1@example.com.csv", filename)
	content := string(payload)
	assert.True(t, strings.HasPrefix(content, "lesson,date,attendance,mark"))
	assert.Contains(t, content, "Algebra")
}

func TestMarkServiceExportStudentProgressBadFormat(t *testing.T) {
	marks, lessons, groups, users, cache := markFixture()
	svc := newMarkService(marks, lessons, groups, users, cache, nil)

	_, _, _, err := svc.ExportStudentProgress(context.Background(), "t1", "g1", "s1@example.com", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
