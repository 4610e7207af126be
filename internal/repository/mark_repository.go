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

// MarkRepository handles mark persistence.
type MarkRepository struct {
	db      *sqlx.DB
	metrics queryObserver
}

// NewMarkRepository creates a new mark repository.
func NewMarkRepository(db *sqlx.DB, metrics queryObserver) *MarkRepository {
	return &MarkRepository{db: db, metrics: metrics}
}

// Upsert inserts or updates the mark for a (lesson, student) pair. The
// unique constraint on the pair makes the operation atomic.
func (r *MarkRepository) Upsert(ctx context.Context, mark *models.Mark) error {
	defer observeQuery(r.metrics, "marks.upsert", time.Now())
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if mark.CreatedAt.IsZero() {
		mark.CreatedAt = now
	}
	mark.UpdatedAt = now
	const query = `INSERT INTO marks (id, lesson_id, student_id, mark, created_at, updated_at)
        VALUES (:id, :lesson_id, :student_id, :mark, :created_at, :updated_at)
        ON CONFLICT (lesson_id, student_id)
        DO UPDATE SET mark = EXCLUDED.mark, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, mark); err != nil {
		return fmt.Errorf("upsert mark: %w", err)
	}
	return nil
}

// FindByLessonStudent returns the mark for a (lesson, student) pair.
func (r *MarkRepository) FindByLessonStudent(ctx context.Context, lessonID, studentID string) (*models.Mark, error) {
	defer observeQuery(r.metrics, "marks.find", time.Now())
	const query = `SELECT id, lesson_id, student_id, mark, created_at, updated_at FROM marks WHERE lesson_id = $1 AND student_id = $2 LIMIT 1`
	var mark models.Mark
	if err := r.db.GetContext(ctx, &mark, query, lessonID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find mark: %w", err)
	}
	return &mark, nil
}

// DeleteByLessonStudent removes all marks for a (lesson, student) pair.
func (r *MarkRepository) DeleteByLessonStudent(ctx context.Context, lessonID, studentID string) error {
	defer observeQuery(r.metrics, "marks.delete", time.Now())
	const query = `DELETE FROM marks WHERE lesson_id = $1 AND student_id = $2`
	if _, err := r.db.ExecContext(ctx, query, lessonID, studentID); err != nil {
		return fmt.Errorf("delete marks: %w", err)
	}
	return nil
}

// ListByLesson returns the lesson's marks joined with student profiles.
func (r *MarkRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.MarkRow, error) {
	defer observeQuery(r.metrics, "marks.list_by_lesson", time.Now())
	const query = `SELECT m.id, m.lesson_id, m.student_id, m.mark, u.email AS student_email, u.name AS student_name
        FROM marks m
        JOIN users u ON u.id = m.student_id
        WHERE m.lesson_id = $1 ORDER BY u.email`
	var rows []models.MarkRow
	if err := r.db.SelectContext(ctx, &rows, query, lessonID); err != nil {
		return nil, fmt.Errorf("list marks by lesson: %w", err)
	}
	return rows, nil
}

// MapByGroupStudent returns the student's marks across a group's lessons
// keyed by lesson identifier.
func (r *MarkRepository) MapByGroupStudent(ctx context.Context, groupID, studentID string) (map[string]float64, error) {
	defer observeQuery(r.metrics, "marks.map_by_group_student", time.Now())
	const query = `SELECT m.lesson_id, m.mark FROM marks m
        JOIN lessons l ON l.id = m.lesson_id
        WHERE l.group_id = $1 AND m.student_id = $2`
	rows, err := r.db.QueryxContext(ctx, query, groupID, studentID)
	if err != nil {
		return nil, fmt.Errorf("fetch group marks: %w", err)
	}
	defer rows.Close()
	result := make(map[string]float64)
	for rows.Next() {
		var lessonID string
		var value float64
		if err := rows.Scan(&lessonID, &value); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		result[lessonID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marks: %w", err)
	}
	return result, nil
}
