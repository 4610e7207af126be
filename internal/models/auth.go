package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest holds the registration payload.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterResponse echoes the created profile, the submitted password and
// the issued token pair. The plaintext password echo is a documented
// contract of the legacy API and is kept for client compatibility.
type RegisterResponse struct {
	Profile
	Password string `json:"password"`
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens merged with the user profile.
type LoginResponse struct {
	Profile
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresIn int64     `json:"expires_in"`
	IssuedAt  time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	Refresh   string `json:"refresh" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshTokenResponse returns the rotated token pair.
type RefreshTokenResponse struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresIn int64     `json:"expires_in"`
	IssuedAt  time.Time `json:"issued_at"`
}

// VerifyTokenRequest carries an access token for verification.
type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// UpdateProfileRequest applies partial updates to the current user. Absent
// fields are left untouched.
type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
