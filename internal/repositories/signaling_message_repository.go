package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/easecampusghana/extraclasses-live/internal/models"
)

// SignalingMessageRepository persists the append-only signaling log.
// Rows are immutable once written; there is no update or delete path.
type SignalingMessageRepository struct {
	db *sql.DB
}

func NewSignalingMessageRepository(db *sql.DB) *SignalingMessageRepository {
	return &SignalingMessageRepository{db: db}
}

// Append writes one message and returns its created_at for ordering.
func (r *SignalingMessageRepository) Append(ctx context.Context, msg *models.SignalingMessage) error {
	const query = `
	INSERT INTO signaling_messages (id, video_session_id, sender_id, message_type, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	RETURNING created_at
	`

	return r.db.QueryRowContext(
		ctx,
		query,
		msg.ID,
		msg.VideoSessionID,
		msg.SenderID,
		msg.MessageType,
		msg.Payload,
	).Scan(&msg.CreatedAt)
}

// ListRecent returns up to limit messages for a session in created_at order,
// oldest first. Used for the bounded backfill a client may request on entry;
// live delivery goes through the hub, not this query.
func (r *SignalingMessageRepository) ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.SignalingMessage, error) {
	const query = `
	SELECT id, video_session_id, sender_id, message_type, payload, created_at
	FROM (
		SELECT id, video_session_id, sender_id, message_type, payload, created_at
		FROM signaling_messages
		WHERE video_session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	) recent
	ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SignalingMessage
	for rows.Next() {
		var msg models.SignalingMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.VideoSessionID,
			&msg.SenderID,
			&msg.MessageType,
			&msg.Payload,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
