package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestMarkRepositoryFindByLessonStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMarkRepository(db, nil)

	rows := sqlmock.NewRows([]string{"id", "lesson_id", "student_id", "mark"}).
		AddRow("m1", "l1", "s1", 4.5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, lesson_id, student_id, mark, created_at, updated_at FROM marks WHERE lesson_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("l1", "s1").
		WillReturnRows(rows)

	mark, err := repo.FindByLessonStudent(context.Background(), "l1", "s1")
	require.NoError(t, err)
	require.Equal(t, 4.5, mark.Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositoryDeleteByLessonStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMarkRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM marks WHERE lesson_id = $1 AND student_id = $2")).
		WithArgs("l1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteByLessonStudent(context.Background(), "l1", "s1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositoryListByLesson(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMarkRepository(db, nil)

	rows := sqlmock.NewRows([]string{"id", "lesson_id", "student_id", "mark", "student_email", "student_name"}).
		AddRow("m1", "l1", "s1", 5.0, "s1@example.com", "Student")
	mock.ExpectQuery("SELECT m.id, m.lesson_id, m.student_id, m.mark, u.email AS student_email, u.name AS student_name").
		WithArgs("l1").
		WillReturnRows(rows)

	marks, err := repo.ListByLesson(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	view := marks[0].View()
	require.Equal(t, "s1@example.com", view.Student.Email)
	require.Equal(t, 5.0, view.Mark)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositoryMapByGroupStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMarkRepository(db, nil)

	rows := sqlmock.NewRows([]string{"lesson_id", "mark"}).
		AddRow("l1", 3.0).
		AddRow("l2", 4.0)
	mock.ExpectQuery("SELECT m.lesson_id, m.mark FROM marks m").
		WithArgs("g1", "s1").
		WillReturnRows(rows)

	result, err := repo.MapByGroupStudent(context.Background(), "g1", "s1")
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"l1": 3.0, "l2": 4.0}, result)
	require.NoError(t, mock.ExpectationsWereMet())
}
