package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a private conversation between exactly two users. The pair is
// stored normalized (smaller id in User1ID) so a lookup by either order
// finds the same row; at most one active chat exists per pair.
type Chat struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	User1ID          uuid.UUID     `db:"user1_id" json:"user1_id"`
	User2ID          uuid.UUID     `db:"user2_id" json:"user2_id"`
	IsActive         bool          `db:"is_active" json:"is_active"`
	LastMessageID    uuid.NullUUID `db:"last_message_id" json:"last_message_id,omitempty"`
	UnreadCountUser1 int           `db:"unread_count_user1" json:"-"`
	UnreadCountUser2 int           `db:"unread_count_user2" json:"-"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// Participant reports whether the user belongs to the chat.
func (c Chat) Participant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the chat member that is not the given user.
func (c Chat) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// UnreadFor returns the unread counter of the given participant slot.
func (c Chat) UnreadFor(userID uuid.UUID) int {
	if c.User1ID == userID {
		return c.UnreadCountUser1
	}
	return c.UnreadCountUser2
}

// ChatInfo is the API view of a chat for one participant.
type ChatInfo struct {
	ID          uuid.UUID `json:"id"`
	User1ID     uuid.UUID `json:"user1_id"`
	User2ID     uuid.UUID `json:"user2_id"`
	OtherUser   UserInfo  `json:"other_user"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
