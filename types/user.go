package types

import "time"

// User is an account holder. SolvedCount and Points are derived from
// the submission history and recomputed after each accepted submission
// rather than maintained incrementally.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name.
	Username string `json:"username" db:"username"`

	Email string `json:"email" db:"email"`

	// Name is the display name shown on profiles and the leaderboard.
	Name string `json:"name" db:"name"`

	// Role is the authorization level, "user" or "admin".
	Role string `json:"role" db:"role"`

	// SolvedCount is the number of distinct problems with at least one
	// accepted submission by this user.
	SolvedCount int `json:"solved_count" db:"solved_count"`

	// Points is the sum of difficulty rewards over the distinct solved
	// problems.
	Points int `json:"points" db:"points"`

	// PasswordHash is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
