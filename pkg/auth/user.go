// Package auth handles users, password hashing and the signed tokens used
// to authenticate API requests.
package auth

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// Role controls what a user may do through the API.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// CanWrite reports whether the role may modify data.
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleEditor
}

// User is an account allowed to use the API.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public returns a copy without the password hash, for API responses.
func (u *User) Public() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// NormalizeEmail lower-cases and trims an email address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Errors returned by user validation.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidRole  = errors.New("invalid role")
)

// Validate checks the email and role.
func (u *User) Validate() error {
	if u.Email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(u.Email)
	if err != nil || addr.Address != u.Email {
		return ErrInvalidEmail
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}
