package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account row. Online is the persisted presence flag, updated on
// the first connect and the last disconnect; LastSeen is only set while
// offline.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	Online       bool       `db:"online" json:"online"`
	LastSeen     *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	ProfileImage *string    `db:"profile_image" json:"profile_image,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// UserInfo is the API view of another user. IsOnline reflects the live
// connection registry, Online the persisted flag.
type UserInfo struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Online       bool       `json:"online"`
	IsOnline     bool       `json:"is_online"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	ProfileImage *string    `json:"profile_image,omitempty"`
}
