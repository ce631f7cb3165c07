package domain

import "time"

// User represents a registered account as persisted by the stub backend.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the public view of the account.
func (u User) Identity() UserIdentity {
	return UserIdentity{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// UserIdentity is the immutable snapshot of the signed-in user as reported by the API.
type UserIdentity struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
