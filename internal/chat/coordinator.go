package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// TypingWindow is the liveness window for typing records; anything older is
// stale, excluded from reads, and purged opportunistically.
const TypingWindow = 10 * time.Second

// Pusher delivers an event to all live connections of a user, reporting
// whether the user had any. Implemented by the websocket dispatcher.
type Pusher interface {
	Push(userID uuid.UUID, event any) bool
}

// Coordinator orchestrates the protocol-level chat operations: each one is
// a logical transaction against the persistence layer followed by zero or
// more pushes. Persistence always completes before dispatch, so events for
// a single sender session reach a recipient in commit order.
type Coordinator struct {
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	typing   repositories.TypingRepository
	pusher   Pusher
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(
	users repositories.UserRepository,
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	typing repositories.TypingRepository,
	pusher Pusher,
) *Coordinator {
	return &Coordinator{users: users, chats: chats, messages: messages, typing: typing, pusher: pusher}
}

// SendMessageInput carries the caller-supplied fields for a new message.
type SendMessageInput struct {
	ReceiverID      uuid.UUID
	MessageType     models.MessageType
	Content         string
	MediaURL        *string
	FileName        *string
	FileSize        *int64
	FileType        *string
	Latitude        *float64
	Longitude       *float64
	ReplyToID       uuid.NullUUID
	ForwardedFromID uuid.NullUUID
	ExtraData       types.JSONText
}

// FindOrCreateChat resolves the active chat for an unordered pair of users,
// creating it when absent. Safe under concurrent calls for the same pair:
// the storage uniqueness constraint is authoritative and a losing creator
// receives the surviving row.
func (c *Coordinator) FindOrCreateChat(ctx context.Context, a, b uuid.UUID) (models.Chat, error) {
	return c.chats.GetOrCreateChat(ctx, a, b)
}

// SendMessage persists a message, updates the chat's last-message pointer
// and the receiver's unread counter, then pushes a message event to both
// participants. The sender receives it too, for multi-device echo.
func (c *Coordinator) SendMessage(ctx context.Context, senderID uuid.UUID, in SendMessageInput) (models.Message, error) {
	if in.MessageType == "" {
		in.MessageType = models.MessageTypeText
	}
	if !in.MessageType.Valid() {
		return models.Message{}, fmt.Errorf("%w: %q", ErrInvalidMessageType, in.MessageType)
	}

	if _, err := c.users.GetUser(ctx, in.ReceiverID); err != nil {
		return models.Message{}, fmt.Errorf("resolve receiver: %w", err)
	}

	chatRow, err := c.chats.GetOrCreateChat(ctx, senderID, in.ReceiverID)
	if err != nil {
		return models.Message{}, fmt.Errorf("resolve chat: %w", err)
	}

	newMsg := repositories.NewMessage{
		ChatID:          chatRow.ID,
		SenderID:        senderID,
		ReceiverID:      in.ReceiverID,
		MessageType:     in.MessageType,
		MediaURL:        in.MediaURL,
		FileName:        in.FileName,
		FileSize:        in.FileSize,
		FileType:        in.FileType,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		ReplyToID:       in.ReplyToID,
		ForwardedFromID: in.ForwardedFromID,
		ExtraData:       in.ExtraData,
	}
	if in.Content != "" {
		newMsg.Content = &in.Content
	}

	msg, err := c.messages.CreateMessage(ctx, newMsg)
	if err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	if err := c.chats.SetLastMessage(ctx, chatRow.ID, msg.ID); err != nil {
		return models.Message{}, fmt.Errorf("update last message: %w", err)
	}
	if err := c.chats.IncrementUnread(ctx, chatRow.ID, in.ReceiverID); err != nil {
		return models.Message{}, fmt.Errorf("increment unread: %w", err)
	}

	event := models.NewMessageEvent(msg)
	c.pusher.Push(senderID, event)
	c.pusher.Push(in.ReceiverID, event)

	observability.IncMessageSent(string(msg.MessageType))
	return msg, nil
}

// MarkRead flips a message's read flag. Only the addressed receiver may
// mark it, the unread -> read transition happens at most once, and only the
// first call resets the reader's unread counter, appends a receipt, and
// notifies the original sender. Repeat calls are no-ops.
func (c *Coordinator) MarkRead(ctx context.Context, messageID, readerID uuid.UUID) (bool, error) {
	msg, err := c.messages.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.ReceiverID != readerID {
		return false, ErrNotMessageReceiver
	}

	changed, err := c.messages.MarkRead(ctx, messageID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if !changed {
		return false, nil
	}

	if err := c.chats.ResetUnread(ctx, msg.ChatID, readerID); err != nil {
		return false, fmt.Errorf("reset unread: %w", err)
	}
	if err := c.messages.CreateReadReceipt(ctx, messageID, readerID); err != nil {
		return false, fmt.Errorf("create read receipt: %w", err)
	}

	c.pusher.Push(msg.SenderID, models.NewMessageReadEvent(messageID, msg.ChatID, readerID))
	observability.IncMessageRead()
	return true, nil
}

// SetTyping upserts the caller's typing record for the chat and notifies
// the other participant. Membership is a precondition, not a silent no-op.
func (c *Coordinator) SetTyping(ctx context.Context, chatID, userID uuid.UUID, isTyping bool) error {
	chatRow, err := c.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chatRow.Participant(userID) {
		return ErrNotChatParticipant
	}

	if err := c.typing.UpsertTyping(ctx, chatID, userID, isTyping); err != nil {
		return fmt.Errorf("upsert typing: %w", err)
	}

	c.pusher.Push(chatRow.OtherParticipant(userID), models.NewTypingEvent(chatID, userID, isTyping))
	return nil
}

// GetTyping returns the chat's non-stale typing records and sweeps globally
// stale rows on the way — maintenance piggybacked on the read path.
func (c *Coordinator) GetTyping(ctx context.Context, chatID, requesterID uuid.UUID) ([]models.TypingStatus, error) {
	chatRow, err := c.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chatRow.Participant(requesterID) {
		return nil, ErrNotChatParticipant
	}

	cutoff := time.Now().Add(-TypingWindow)
	statuses, err := c.typing.ListActiveTyping(ctx, chatID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list typing: %w", err)
	}

	if _, err := c.typing.PurgeStaleTyping(ctx, cutoff); err != nil {
		// The sweep is best-effort; the read already succeeded.
		log.Printf("purge stale typing: %v", err)
	}
	return statuses, nil
}
