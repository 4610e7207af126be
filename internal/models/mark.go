package models

import "time"

// Mark represents a numeric grade for one student on one lesson. The
// (lesson_id, student_id) pair is unique at the database level.
type Mark struct {
	ID        string    `db:"id" json:"id"`
	LessonID  string    `db:"lesson_id" json:"lesson"`
	StudentID string    `db:"student_id" json:"student"`
	Value     float64   `db:"mark" json:"mark"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MarkRow is a mark joined with the compact student profile.
type MarkRow struct {
	ID           string  `db:"id"`
	LessonID     string  `db:"lesson_id"`
	StudentID    string  `db:"student_id"`
	Value        float64 `db:"mark"`
	StudentEmail string  `db:"student_email"`
	StudentName  string  `db:"student_name"`
}

// MarkView is the mark shape returned by the API.
type MarkView struct {
	ID      string     `json:"id"`
	Student SimpleUser `json:"student"`
	Lesson  string     `json:"lesson"`
	Mark    float64    `json:"mark"`
}

// View shapes the joined row for responses.
func (r MarkRow) View() MarkView {
	return MarkView{
		ID:      r.ID,
		Student: SimpleUser{ID: r.StudentID, Email: r.StudentEmail, Name: r.StudentName},
		Lesson:  r.LessonID,
		Mark:    r.Value,
	}
}
