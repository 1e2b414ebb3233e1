package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

// TypingRepository abstracts ephemeral typing-status persistence.
type TypingRepository interface {
	UpsertTyping(ctx context.Context, chatID, userID uuid.UUID, isTyping bool) error
	ListActiveTyping(ctx context.Context, chatID uuid.UUID, cutoff time.Time) ([]models.TypingStatus, error)
	PurgeStaleTyping(ctx context.Context, cutoff time.Time) (int64, error)
}

// TypingRepo is a sqlx implementation of TypingRepository.
type TypingRepo struct {
	db *sqlx.DB
}

// NewTypingRepo constructs a TypingRepo.
func NewTypingRepo(db *sqlx.DB) *TypingRepo {
	return &TypingRepo{db: db}
}

// UpsertTyping writes the per-(chat,user) typing record.
func (r *TypingRepo) UpsertTyping(ctx context.Context, chatID, userID uuid.UUID, isTyping bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO typing_status (chat_id, user_id, is_typing, updated_at) VALUES ($1, $2, $3, NOW())
         ON CONFLICT (chat_id, user_id) DO UPDATE SET is_typing = EXCLUDED.is_typing, updated_at = NOW()`,
		chatID, userID, isTyping)
	return err
}

// ListActiveTyping returns non-stale typing records for the chat.
func (r *TypingRepo) ListActiveTyping(ctx context.Context, chatID uuid.UUID, cutoff time.Time) ([]models.TypingStatus, error) {
	var statuses []models.TypingStatus
	err := r.db.SelectContext(ctx, &statuses,
		`SELECT chat_id, user_id, is_typing, updated_at FROM typing_status
         WHERE chat_id=$1 AND is_typing = TRUE AND updated_at >= $2`, chatID, cutoff)
	return statuses, err
}

// PurgeStaleTyping deletes records older than the cutoff, across all chats.
func (r *TypingRepo) PurgeStaleTyping(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM typing_status WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
