package models

import (
	"time"

	"github.com/google/uuid"
)

// Outbound event discriminators pushed over websocket connections.
const (
	EventConnection  = "connection"
	EventMessage     = "message"
	EventTyping      = "typing"
	EventMessageRead = "message_read"
	EventError       = "error"
	EventPong        = "pong"
)

// ConnectionEvent acknowledges a successful websocket admission.
type ConnectionEvent struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageEvent carries a full message payload to both chat participants.
type MessageEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// TypingEvent notifies the other participant of a typing state change.
type TypingEvent struct {
	Type      string    `json:"type"`
	ChatID    uuid.UUID `json:"chat_id"`
	UserID    uuid.UUID `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageReadEvent notifies the original sender that a message was read.
type MessageReadEvent struct {
	Type      string    `json:"type"`
	MessageID uuid.UUID `json:"message_id"`
	ChatID    uuid.UUID `json:"chat_id"`
	ReaderID  uuid.UUID `json:"reader_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a non-fatal domain error back over the connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongEvent answers a ping frame.
type PongEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageEvent wraps a persisted message for dispatch.
func NewMessageEvent(msg Message) MessageEvent {
	return MessageEvent{Type: EventMessage, Message: msg}
}

// NewTypingEvent builds a typing notification.
func NewTypingEvent(chatID, userID uuid.UUID, isTyping bool) TypingEvent {
	return TypingEvent{Type: EventTyping, ChatID: chatID, UserID: userID, IsTyping: isTyping, Timestamp: time.Now()}
}

// NewMessageReadEvent builds a read notification for the sender.
func NewMessageReadEvent(messageID, chatID, readerID uuid.UUID) MessageReadEvent {
	return MessageReadEvent{Type: EventMessageRead, MessageID: messageID, ChatID: chatID, ReaderID: readerID, Timestamp: time.Now()}
}
