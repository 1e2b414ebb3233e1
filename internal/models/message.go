package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// MessageType tags the payload kind of a message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeFile     MessageType = "file"
	MessageTypeLocation MessageType = "location"
	MessageTypeSystem   MessageType = "system"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio,
		MessageTypeFile, MessageTypeLocation, MessageTypeSystem:
		return true
	}
	return false
}

// Message is a single message in a chat. Rows are immutable after creation
// except for the one-way unread -> read transition.
type Message struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	ChatID          uuid.UUID      `db:"chat_id" json:"chat_id"`
	SenderID        uuid.UUID      `db:"sender_id" json:"sender_id"`
	ReceiverID      uuid.UUID      `db:"receiver_id" json:"receiver_id"`
	MessageType     MessageType    `db:"message_type" json:"message_type"`
	Content         *string        `db:"content" json:"content,omitempty"`
	MediaURL        *string        `db:"media_url" json:"media_url,omitempty"`
	FileName        *string        `db:"file_name" json:"file_name,omitempty"`
	FileSize        *int64         `db:"file_size" json:"file_size,omitempty"`
	FileType        *string        `db:"file_type" json:"file_type,omitempty"`
	Latitude        *float64       `db:"latitude" json:"latitude,omitempty"`
	Longitude       *float64       `db:"longitude" json:"longitude,omitempty"`
	ReplyToID       uuid.NullUUID  `db:"reply_to_id" json:"reply_to_id,omitempty"`
	ForwardedFromID uuid.NullUUID  `db:"forwarded_from_id" json:"forwarded_from_id,omitempty"`
	IsRead          bool           `db:"is_read" json:"is_read"`
	ReadAt          *time.Time     `db:"read_at" json:"read_at,omitempty"`
	ExtraData       types.JSONText `db:"extra_data" json:"extra_data,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// ReadReceipt is an append-only record of a message being read. Receipts are
// never deduplicated; the message read flag is the idempotency guard.
type ReadReceipt struct {
	ID        uuid.UUID `db:"id" json:"id"`
	MessageID uuid.UUID `db:"message_id" json:"message_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
}
