package models

import "time"

// StudyGroup represents a study group row.
type StudyGroup struct {
	ID           string    `db:"id" json:"id"`
	GroupTitle   string    `db:"group_title" json:"group_title"`
	SubjectTitle string    `db:"subject_title" json:"subject_title"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// GroupView is the group shape returned by the API: the row plus its
// membership sets and the identifiers of its lessons.
type GroupView struct {
	ID           string       `json:"id"`
	GroupTitle   string       `json:"group_title"`
	SubjectTitle string       `json:"subject_title"`
	Students     []SimpleUser `json:"students"`
	Teachers     []SimpleUser `json:"teachers"`
	Lessons      []string     `json:"lessons"`
}
