package models

import (
	"time"

	"github.com/google/uuid"
)

// TypingStatus is an ephemeral per-(chat,user) record. Entries older than
// the liveness window are stale: excluded from reads and eligible for purge.
type TypingStatus struct {
	ChatID    uuid.UUID `db:"chat_id" json:"chat_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	IsTyping  bool      `db:"is_typing" json:"is_typing"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
