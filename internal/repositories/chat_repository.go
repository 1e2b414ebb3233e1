package repositories

import (
	"bytes"
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrChatExists   = errors.New("chat already exists")
	ErrSelfChat     = errors.New("cannot create chat with self")
)

// NormalizePair orders two user ids canonically (smaller id first) so a
// chat lookup by either order resolves the same row.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	GetOrCreateChat(ctx context.Context, a, b uuid.UUID) (models.Chat, error)
	CreateChat(ctx context.Context, a, b uuid.UUID) (models.Chat, error)
	GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error)
	GetChatByUsers(ctx context.Context, a, b uuid.UUID) (models.Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
	DeactivateChat(ctx context.Context, chatID uuid.UUID) error
	SetLastMessage(ctx context.Context, chatID, messageID uuid.UUID) error
	IncrementUnread(ctx context.Context, chatID, receiverID uuid.UUID) error
	ResetUnread(ctx context.Context, chatID, userID uuid.UUID) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, user1_id, user2_id, is_active, last_message_id, unread_count_user1, unread_count_user2, created_at, updated_at`

// GetOrCreateChat returns the active chat for the pair, creating it when
// absent. The partial unique index over active pairs is authoritative: a
// creation that loses a concurrent race falls through to the re-select and
// returns the surviving row, while deactivated chats never block a new one.
func (r *ChatRepo) GetOrCreateChat(ctx context.Context, a, b uuid.UUID) (models.Chat, error) {
	if a == b {
		return models.Chat{}, ErrSelfChat
	}
	user1, user2 := NormalizePair(a, b)

	chat, err := r.GetChatByUsers(ctx, user1, user2)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, ErrChatNotFound) {
		return models.Chat{}, err
	}

	err = r.db.GetContext(ctx, &chat,
		`INSERT INTO chats (user1_id, user2_id) VALUES ($1, $2)
         ON CONFLICT (user1_id, user2_id) WHERE is_active DO NOTHING
         RETURNING `+chatColumns, user1, user2)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	// Lost the race: the conflicting insert committed first.
	return r.GetChatByUsers(ctx, user1, user2)
}

// CreateChat creates a chat for the pair, failing when an active one exists.
func (r *ChatRepo) CreateChat(ctx context.Context, a, b uuid.UUID) (models.Chat, error) {
	if a == b {
		return models.Chat{}, ErrSelfChat
	}
	user1, user2 := NormalizePair(a, b)

	if _, err := r.GetChatByUsers(ctx, user1, user2); err == nil {
		return models.Chat{}, ErrChatExists
	} else if !errors.Is(err, ErrChatNotFound) {
		return models.Chat{}, err
	}

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`INSERT INTO chats (user1_id, user2_id) VALUES ($1, $2)
         ON CONFLICT (user1_id, user2_id) WHERE is_active DO NOTHING
         RETURNING `+chatColumns, user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatExists
	}
	return chat, err
}

// GetChat fetches an active chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats WHERE id=$1 AND is_active = TRUE`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetChatByUsers fetches the active chat for a pair in either order.
func (r *ChatRepo) GetChatByUsers(ctx context.Context, a, b uuid.UUID) (models.Chat, error) {
	user1, user2 := NormalizePair(a, b)
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 AND user2_id=$2 AND is_active = TRUE`,
		user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListChats returns the user's active chats ordered by recency.
func (r *ChatRepo) ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats,
		`SELECT `+chatColumns+` FROM chats
         WHERE (user1_id=$1 OR user2_id=$1) AND is_active = TRUE
         ORDER BY updated_at DESC`, userID)
	return chats, err
}

// DeactivateChat soft-deletes the chat. Rows are never physically removed.
func (r *ChatRepo) DeactivateChat(ctx context.Context, chatID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET is_active = FALSE, updated_at = NOW() WHERE id=$1 AND is_active = TRUE`, chatID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// SetLastMessage updates the last-message pointer and bumps updated_at.
func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID, messageID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_message_id = $2, updated_at = NOW() WHERE id=$1`, chatID, messageID)
	return err
}

// IncrementUnread bumps the unread counter of the receiver's slot.
func (r *ChatRepo) IncrementUnread(ctx context.Context, chatID, receiverID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET
            unread_count_user1 = unread_count_user1 + (CASE WHEN user1_id=$2 THEN 1 ELSE 0 END),
            unread_count_user2 = unread_count_user2 + (CASE WHEN user2_id=$2 THEN 1 ELSE 0 END)
         WHERE id=$1`, chatID, receiverID)
	return err
}

// ResetUnread zeroes the unread counter of the user's slot.
func (r *ChatRepo) ResetUnread(ctx context.Context, chatID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET
            unread_count_user1 = (CASE WHEN user1_id=$2 THEN 0 ELSE unread_count_user1 END),
            unread_count_user2 = (CASE WHEN user2_id=$2 THEN 0 ELSE unread_count_user2 END)
         WHERE id=$1`, chatID, userID)
	return err
}
