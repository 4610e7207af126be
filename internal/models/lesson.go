package models

import "time"

// Lesson represents a lesson row belonging to a study group.
type Lesson struct {
	ID        string     `db:"id" json:"id"`
	GroupID   string     `db:"group_id" json:"group"`
	Title     string     `db:"title" json:"title"`
	Date      *time.Time `db:"date" json:"date"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// LessonView is the teacher-facing lesson shape with full mark and
// attendance detail.
type LessonView struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Date        *time.Time   `json:"date"`
	Group       string       `json:"group"`
	Marks       []MarkView   `json:"marks"`
	Attendances []SimpleUser `json:"attendances"`
}

// StudentLessonView is the lesson shape returned to students and used by
// the per-student progress report: only the caller's own attendance flag
// and mark are exposed.
type StudentLessonView struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Date       *time.Time `json:"date"`
	Group      string     `json:"group"`
	Attendance bool       `json:"attendance"`
	Mark       *float64   `json:"mark"`
}

// StudentStatusView pairs a student profile with their standing on one lesson.
type StudentStatusView struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Attendance bool     `json:"attendance"`
	Mark       *float64 `json:"mark"`
}
