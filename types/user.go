package types

import "time"

// User represents a boat owner account.
// It contains identity, authorization, and audit metadata.
type User struct {
	// ID is the unique identifier of the user (UUID, immutable once assigned).
	ID string `json:"id" db:"id"`

	// Email is the user's unique email address, used for login.
	Email string `json:"email" db:"email"`

	// DisplayName is the name shown in the application.
	DisplayName string `json:"display_name" db:"display_name"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsAdmin marks users with administrative privileges.
	IsAdmin bool `json:"is_admin" db:"is_admin"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// LastLogin is the timestamp of the most recent successful login.
	// It is nil until the user logs in for the first time.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`
}
