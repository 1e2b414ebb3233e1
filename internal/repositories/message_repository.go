package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// NewMessage carries the caller-supplied fields of a message to be created.
type NewMessage struct {
	ChatID          uuid.UUID
	SenderID        uuid.UUID
	ReceiverID      uuid.UUID
	MessageType     models.MessageType
	Content         *string
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

// MessageRepository abstracts message and read-receipt persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	ListChatMessages(ctx context.Context, chatID uuid.UUID, skip, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID uuid.UUID, readAt time.Time) (bool, error)
	CreateReadReceipt(ctx context.Context, messageID, userID uuid.UUID) error
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, receiver_id, message_type, content, media_url,
    file_name, file_size, file_type, latitude, longitude, reply_to_id, forwarded_from_id,
    is_read, read_at, extra_data, created_at`

// CreateMessage inserts a message row.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg NewMessage) (models.Message, error) {
	var created models.Message
	err := r.db.GetContext(ctx, &created,
		`INSERT INTO messages (chat_id, sender_id, receiver_id, message_type, content, media_url,
            file_name, file_size, file_type, latitude, longitude, reply_to_id, forwarded_from_id, extra_data)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
         RETURNING `+messageColumns,
		msg.ChatID, msg.SenderID, msg.ReceiverID, msg.MessageType, msg.Content, msg.MediaURL,
		msg.FileName, msg.FileSize, msg.FileType, msg.Latitude, msg.Longitude,
		msg.ReplyToID, msg.ForwardedFromID, msg.ExtraData)
	return created, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListChatMessages returns chat messages in creation order.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID uuid.UUID, skip, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1
         ORDER BY created_at ASC OFFSET $2 LIMIT $3`, chatID, skip, limit)
	return msgs, err
}

// MarkRead flips the read flag. The WHERE clause enforces the one-way
// transition: a message already read reports false and mutates nothing,
// even under concurrent callers.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID uuid.UUID, readAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE, read_at = $2 WHERE id=$1 AND is_read = FALSE`,
		messageID, readAt)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateReadReceipt appends a read receipt. Receipts are never deduplicated.
func (r *MessageRepo) CreateReadReceipt(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_read_receipts (message_id, user_id) VALUES ($1, $2)`, messageID, userID)
	return err
}
