package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// LessonRepository provides database access for lessons and their
// attendance sets.
type LessonRepository struct {
	db      *sqlx.DB
	metrics queryObserver
}

// NewLessonRepository creates a new instance of LessonRepository.
func NewLessonRepository(db *sqlx.DB, metrics queryObserver) *LessonRepository {
	return &LessonRepository{db: db, metrics: metrics}
}

// FindByID returns a lesson by identifier.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	defer observeQuery(r.metrics, "lessons.find_by_id", time.Now())
	const query = `SELECT id, group_id, title, date, created_at, updated_at FROM lessons WHERE id = $1 LIMIT 1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson by id: %w", err)
	}
	return &lesson, nil
}

// ListByGroup returns all lessons of a group ordered by creation.
func (r *LessonRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Lesson, error) {
	defer observeQuery(r.metrics, "lessons.list_by_group", time.Now())
	const query = `SELECT id, group_id, title, date, created_at, updated_at FROM lessons WHERE group_id = $1 ORDER BY created_at`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, groupID); err != nil {
		return nil, fmt.Errorf("list lessons by group: %w", err)
	}
	return lessons, nil
}

// Create inserts a lesson.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	defer observeQuery(r.metrics, "lessons.create", time.Now())
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now

	const query = `INSERT INTO lessons (id, group_id, title, date, created_at, updated_at)
        VALUES (:id, :group_id, :title, :date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// Update persists title and date changes of a lesson.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	defer observeQuery(r.metrics, "lessons.update", time.Now())
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET title = :title, date = :date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return nil
}

// Delete removes a lesson. Marks and attendance rows cascade.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	defer observeQuery(r.metrics, "lessons.delete", time.Now())
	const query = `DELETE FROM lessons WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return nil
}

// AddAttendance marks the student present on the lesson. Inserting an
// existing pair is a no-op.
func (r *LessonRepository) AddAttendance(ctx context.Context, lessonID, studentID string) error {
	defer observeQuery(r.metrics, "attendances.add", time.Now())
	const query = `INSERT INTO lesson_attendances (lesson_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, lessonID, studentID); err != nil {
		return fmt.Errorf("add attendance: %w", err)
	}
	return nil
}

// RemoveAttendance marks the student absent on the lesson.
func (r *LessonRepository) RemoveAttendance(ctx context.Context, lessonID, studentID string) error {
	defer observeQuery(r.metrics, "attendances.remove", time.Now())
	const query = `DELETE FROM lesson_attendances WHERE lesson_id = $1 AND student_id = $2`
	if _, err := r.db.ExecContext(ctx, query, lessonID, studentID); err != nil {
		return fmt.Errorf("remove attendance: %w", err)
	}
	return nil
}

// Attended reports whether the student is in the lesson's attendance set.
func (r *LessonRepository) Attended(ctx context.Context, lessonID, studentID string) (bool, error) {
	defer observeQuery(r.metrics, "attendances.check", time.Now())
	const query = `SELECT EXISTS (SELECT 1 FROM lesson_attendances WHERE lesson_id = $1 AND student_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, lessonID, studentID); err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return exists, nil
}

// ListAttendees returns the compact profiles of the lesson's attendance set.
func (r *LessonRepository) ListAttendees(ctx context.Context, lessonID string) ([]models.SimpleUser, error) {
	defer observeQuery(r.metrics, "attendances.list", time.Now())
	const query = `SELECT u.id, u.email, u.name FROM users u
        JOIN lesson_attendances la ON la.student_id = u.id
        WHERE la.lesson_id = $1 ORDER BY u.email`
	var users []models.SimpleUser
	if err := r.db.SelectContext(ctx, &users, query, lessonID); err != nil {
		return nil, fmt.Errorf("list lesson attendees: %w", err)
	}
	return users, nil
}

// AttendeeIDs returns the student identifiers in the lesson's attendance set.
func (r *LessonRepository) AttendeeIDs(ctx context.Context, lessonID string) ([]string, error) {
	defer observeQuery(r.metrics, "attendances.list_ids", time.Now())
	const query = `SELECT student_id FROM lesson_attendances WHERE lesson_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, lessonID); err != nil {
		return nil, fmt.Errorf("list attendee ids: %w", err)
	}
	return ids, nil
}
