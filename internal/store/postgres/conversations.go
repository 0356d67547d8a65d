package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

const conversationColumns = `id, user_id, summary, message_count, created_at, updated_at, processed, is_useful, usefulness_reason, global_sharing_blocked, deleted, deleted_at`

func scanConversation(row interface {
	Scan(dest ...any) error
}) (graphmodel.Conversation, error) {
	var c graphmodel.Conversation
	var isUseful int
	if err := row.Scan(&c.ID, &c.UserID, &c.Summary, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt,
		&c.Processed, &isUseful, &c.UsefulnessReason, &c.GlobalSharingBlocked, &c.Deleted, &c.DeletedAt); err != nil {
		return graphmodel.Conversation{}, err
	}
	c.IsUseful = graphmodel.Usefulness(isUseful)
	return c, nil
}

func (s *Store) CreateConversation(ctx context.Context, userID string) (graphmodel.Conversation, error) {
	if userID == "" {
		return graphmodel.Conversation{}, store.ErrInvalidInput
	}
	if _, err := s.GetOrCreateUser(ctx, userID); err != nil {
		return graphmodel.Conversation{}, err
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
INSERT INTO conversations (id, user_id, created_at, updated_at)
VALUES ($1, $2, $3, $3)`, id, userID, now)
	if err != nil {
		return graphmodel.Conversation{}, err
	}
	return graphmodel.Conversation{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (graphmodel.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, conversationID)
	c, err := scanConversation(row)
	if err != nil {
		if errNoRows(err) {
			return graphmodel.Conversation{}, store.ErrNotFound
		}
		return graphmodel.Conversation{}, err
	}
	return c, nil
}

func (s *Store) AddMessage(ctx context.Context, conversationID string, role graphmodel.Role, content string) (graphmodel.Message, error) {
	msg := graphmodel.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
INSERT INTO messages (id, conversation_id, role, content, created_at)
SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM conversations WHERE id = $2)`,
			msg.ID, conversationID, string(role), content, msg.CreatedAt)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE conversations SET message_count = message_count + 1 WHERE id = $1`, conversationID)
		return err
	})
	if err != nil {
		return graphmodel.Message{}, err
	}
	return msg, nil
}

func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]graphmodel.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, conversation_id, role, content, created_at FROM messages
WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graphmodel.Message{}
	for rows.Next() {
		var m graphmodel.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = graphmodel.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateConversationActivity(ctx context.Context, conversationID string) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, conversationID, time.Now().UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetConversationGlobalSharingBlocked(ctx context.Context, conversationID string, blocked bool) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE conversations SET global_sharing_blocked = $2 WHERE id = $1`, conversationID, blocked)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IsConversationGlobalSharingBlocked(ctx context.Context, conversationID string) (bool, error) {
	var blocked bool
	err := s.pool.QueryRow(ctx, `SELECT global_sharing_blocked FROM conversations WHERE id = $1`, conversationID).Scan(&blocked)
	if err != nil {
		if errNoRows(err) {
			return false, store.ErrNotFound
		}
		return false, err
	}
	return blocked, nil
}

func (s *Store) GetUserActiveConversations(ctx context.Context, userID string, limit int) ([]graphmodel.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+conversationColumns+` FROM conversations
WHERE user_id = $1 AND NOT deleted
ORDER BY updated_at DESC
LIMIT NULLIF($2, 0)`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graphmodel.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteConversationFromUserGraph(ctx context.Context, conversationID, userID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var owner string
		if err := tx.QueryRow(ctx, `SELECT user_id FROM conversations WHERE id = $1`, conversationID).Scan(&owner); err != nil {
			if errNoRows(err) {
				return store.ErrNotFound
			}
			return err
		}
		if owner != userID {
			return store.ErrForbidden
		}
		if _, err := tx.Exec(ctx, `UPDATE insights SET user_id = $2 WHERE conversation_id = $1`,
			conversationID, graphmodel.AnonymousUserID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM conversation_topics WHERE conversation_id = $1`, conversationID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE conversations SET deleted = TRUE, deleted_at = $2 WHERE id = $1`,
			conversationID, time.Now().UTC())
		return err
	})
}
