package models

import "time"

// UserRole represents the closed set of account roles.
type UserRole string

const (
	RoleStudent UserRole = "ST"
	RoleTeacher UserRole = "TR"
)

// Valid reports whether the role is one of the allowed values.
func (r UserRole) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// Roles lists the allowed role values for validation messages.
func Roles() []UserRole {
	return []UserRole{RoleStudent, RoleTeacher}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Name         string     `db:"name" json:"name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	IsAdmin      bool       `db:"is_admin" json:"is_admin"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SimpleUser is the compact user shape embedded in group and lesson views.
type SimpleUser struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
}

// Simple returns the compact view of the user.
func (u *User) Simple() SimpleUser {
	return SimpleUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Profile is the full user shape returned by identity endpoints.
type Profile struct {
	ID             string      `json:"id"`
	Email          string      `json:"email"`
	Name           string      `json:"name"`
	Role           UserRole    `json:"role"`
	LastLogin      *time.Time  `json:"last_login"`
	StudyingGroups []GroupView `json:"studying_groups"`
	TeachingGroups []GroupView `json:"teaching_groups"`
}
