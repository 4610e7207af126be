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

// GroupRepository provides database access for study groups and their
// membership sets.
type GroupRepository struct {
	db      *sqlx.DB
	metrics queryObserver
}

// NewGroupRepository creates a new instance of GroupRepository.
func NewGroupRepository(db *sqlx.DB, metrics queryObserver) *GroupRepository {
	return &GroupRepository{db: db, metrics: metrics}
}

// FindByID returns a study group by identifier.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.StudyGroup, error) {
	defer observeQuery(r.metrics, "groups.find_by_id", time.Now())
	const query = `SELECT id, group_title, subject_title, created_at FROM study_groups WHERE id = $1 LIMIT 1`
	var group models.StudyGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group by id: %w", err)
	}
	return &group, nil
}

// Create inserts a group and registers the creator in its teacher set
// within one transaction.
func (r *GroupRepository) Create(ctx context.Context, group *models.StudyGroup, creatorID string) error {
	defer observeQuery(r.metrics, "groups.create", time.Now())
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create group: %w", err)
	}
	const insertGroup = `INSERT INTO study_groups (id, group_title, subject_title, created_at) VALUES (:id, :group_title, :subject_title, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertGroup, group); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create group: %w", err)
	}
	const insertTeacher = `INSERT INTO group_teachers (group_id, user_id) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, insertTeacher, group.ID, creatorID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("add creator as teacher: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create group: %w", err)
	}
	return nil
}

// Update persists title changes of a group.
func (r *GroupRepository) Update(ctx context.Context, group *models.StudyGroup) error {
	defer observeQuery(r.metrics, "groups.update", time.Now())
	const query = `UPDATE study_groups SET group_title = :group_title, subject_title = :subject_title WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// Delete removes a group. Lessons, marks and attendance rows cascade at the
// database level.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	defer observeQuery(r.metrics, "groups.delete", time.Now())
	const query = `DELETE FROM study_groups WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// ListByStudent returns the groups a user studies in.
func (r *GroupRepository) ListByStudent(ctx context.Context, userID string) ([]models.StudyGroup, error) {
	defer observeQuery(r.metrics, "groups.list_by_student", time.Now())
	const query = `SELECT g.id, g.group_title, g.subject_title, g.created_at FROM study_groups g
        JOIN group_students gs ON gs.group_id = g.id
        WHERE gs.user_id = $1 ORDER BY g.created_at`
	var groups []models.StudyGroup
	if err := r.db.SelectContext(ctx, &groups, query, userID); err != nil {
		return nil, fmt.Errorf("list groups by student: %w", err)
	}
	return groups, nil
}

// ListByTeacher returns the groups a user teaches.
func (r *GroupRepository) ListByTeacher(ctx context.Context, userID string) ([]models.StudyGroup, error) {
	defer observeQuery(r.metrics, "groups.list_by_teacher", time.Now())
	const query = `SELECT g.id, g.group_title, g.subject_title, g.created_at FROM study_groups g
        JOIN group_teachers gt ON gt.group_id = g.id
        WHERE gt.user_id = $1 ORDER BY g.created_at`
	var groups []models.StudyGroup
	if err := r.db.SelectContext(ctx, &groups, query, userID); err != nil {
		return nil, fmt.Errorf("list groups by teacher: %w", err)
	}
	return groups, nil
}

// IsTeacher reports whether the user belongs to the group's teacher set.
func (r *GroupRepository) IsTeacher(ctx context.Context, groupID, userID string) (bool, error) {
	defer observeQuery(r.metrics, "groups.is_teacher", time.Now())
	const query = `SELECT EXISTS (SELECT 1 FROM group_teachers WHERE group_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, groupID, userID); err != nil {
		return false, fmt.Errorf("check teacher membership: %w", err)
	}
	return exists, nil
}

// IsStudent reports whether the user belongs to the group's student set.
func (r *GroupRepository) IsStudent(ctx context.Context, groupID, userID string) (bool, error) {
	defer observeQuery(r.metrics, "groups.is_student", time.Now())
	const query = `SELECT EXISTS (SELECT 1 FROM group_students WHERE group_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, groupID, userID); err != nil {
		return false, fmt.Errorf("check student membership: %w", err)
	}
	return exists, nil
}

// AddStudent inserts a user into the group's student set.
func (r *GroupRepository) AddStudent(ctx context.Context, groupID, userID string) error {
	defer observeQuery(r.metrics, "groups.add_student", time.Now())
	const query = `INSERT INTO group_students (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("add student to group: %w", err)
	}
	return nil
}

// AddTeacher inserts a user into the group's teacher set.
func (r *GroupRepository) AddTeacher(ctx context.Context, groupID, userID string) error {
	defer observeQuery(r.metrics, "groups.add_teacher", time.Now())
	const query = `INSERT INTO group_teachers (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("add teacher to group: %w", err)
	}
	return nil
}

// ListStudents returns the compact profiles of the group's student set.
func (r *GroupRepository) ListStudents(ctx context.Context, groupID string) ([]models.SimpleUser, error) {
	defer observeQuery(r.metrics, "groups.list_students", time.Now())
	const query = `SELECT u.id, u.email, u.name FROM users u
        JOIN group_students gs ON gs.user_id = u.id
        WHERE gs.group_id = $1 ORDER BY u.email`
	var users []models.SimpleUser
	if err := r.db.SelectContext(ctx, &users, query, groupID); err != nil {
		return nil, fmt.Errorf("list group students: %w", err)
	}
	return users, nil
}

// ListTeachers returns the compact profiles of the group's teacher set.
func (r *GroupRepository) ListTeachers(ctx context.Context, groupID string) ([]models.SimpleUser, error) {
	defer observeQuery(r.metrics, "groups.list_teachers", time.Now())
	const query = `SELECT u.id, u.email, u.name FROM users u
        JOIN group_teachers gt ON gt.user_id = u.id
        WHERE gt.group_id = $1 ORDER BY u.email`
	var users []models.SimpleUser
	if err := r.db.SelectContext(ctx, &users, query, groupID); err != nil {
		return nil, fmt.Errorf("list group teachers: %w", err)
	}
	return users, nil
}

// FindStudentByEmail resolves a student of the group by email.
func (r *GroupRepository) FindStudentByEmail(ctx context.Context, groupID, email string) (*models.User, error) {
	defer observeQuery(r.metrics, "groups.find_student_by_email", time.Now())
	const query = `SELECT ` + userColumns + ` FROM users
        WHERE email = $2 AND id IN (SELECT user_id FROM group_students WHERE group_id = $1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, groupID, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group student by email: %w", err)
	}
	return &user, nil
}

// ListLessonIDs returns the identifiers of the group's lessons.
func (r *GroupRepository) ListLessonIDs(ctx context.Context, groupID string) ([]string, error) {
	defer observeQuery(r.metrics, "groups.list_lesson_ids", time.Now())
	const query = `SELECT id FROM lessons WHERE group_id = $1 ORDER BY created_at`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, fmt.Errorf("list group lesson ids: %w", err)
	}
	return ids, nil
}
