package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

func (s *Store) resolveTopicNames(ctx context.Context, insightID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT t.name FROM topics t
JOIN insight_topics it ON it.topic_id = t.id
WHERE it.insight_id = $1`, insightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) SaveInsight(ctx context.Context, in graphmodel.Insight, topicIDs []string) (graphmodel.Insight, error) {
	if in.ConversationID == "" || in.UserID == "" || in.Content == "" {
		return graphmodel.Insight{}, store.ErrInvalidInput
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.ImportanceScore == 0 {
		in.ImportanceScore = graphmodel.InsightImportanceExtracted
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO insights (id, conversation_id, user_id, content, importance_score, vector_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			in.ID, in.ConversationID, in.UserID, in.Content, in.ImportanceScore, in.VectorRef, in.CreatedAt); err != nil {
			return err
		}
		for _, topicID := range topicIDs {
			if _, err := tx.Exec(ctx, `
INSERT INTO insight_topics (insight_id, topic_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, in.ID, topicID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return graphmodel.Insight{}, err
	}
	in.Topics = append([]string{}, in.Topics...)
	if names, err := s.resolveTopicNames(ctx, in.ID); err == nil {
		in.Topics = names
	}
	return in, nil
}

const insightColumns = `id, conversation_id, user_id, content, importance_score, vector_ref, created_at`

func scanInsight(rows interface {
	Scan(dest ...any) error
}) (graphmodel.Insight, error) {
	var in graphmodel.Insight
	if err := rows.Scan(&in.ID, &in.ConversationID, &in.UserID, &in.Content, &in.ImportanceScore, &in.VectorRef, &in.CreatedAt); err != nil {
		return graphmodel.Insight{}, err
	}
	return in, nil
}

func (s *Store) attachTopics(ctx context.Context, insights []graphmodel.Insight) ([]graphmodel.Insight, error) {
	for i := range insights {
		names, err := s.resolveTopicNames(ctx, insights[i].ID)
		if err != nil {
			return nil, err
		}
		insights[i].Topics = names
	}
	return insights, nil
}

func (s *Store) GetRelatedInsights(ctx context.Context, userID string, topicIDs []string, limit int) ([]graphmodel.Insight, error) {
	if len(topicIDs) == 0 {
		return []graphmodel.Insight{}, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT `+insightColumns+` FROM insights i
JOIN insight_topics it ON it.insight_id = i.id
WHERE i.user_id = $1 AND it.topic_id = ANY($2)
ORDER BY i.created_at DESC
LIMIT $3`, userID, topicIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graphmodel.Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.attachTopics(ctx, out)
}

func (s *Store) GetRecentUserInsights(ctx context.Context, userID string, limit int) ([]graphmodel.Insight, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+insightColumns+` FROM insights
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT NULLIF($2, 0)`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graphmodel.Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.attachTopics(ctx, out)
}

// GetGlobalInsights is the community pool: insights from other users
// whose owning conversation is not globalSharingBlocked.
func (s *Store) GetGlobalInsights(ctx context.Context, excludeUserID string, limit int) ([]graphmodel.Insight, error) {
	rows, err := s.pool.Query(ctx, `
SELECT i.id, i.conversation_id, i.user_id, i.content, i.importance_score, i.vector_ref, i.created_at
FROM insights i
JOIN conversations c ON c.id = i.conversation_id
WHERE i.user_id <> $1 AND NOT c.global_sharing_blocked
ORDER BY i.created_at DESC
LIMIT $2`, excludeUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graphmodel.Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.attachTopics(ctx, out)
}

func (s *Store) GetGlobalConversationSummaries(ctx context.Context, excludeUserID string, limit int) ([]graphmodel.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+conversationColumns+` FROM conversations
WHERE user_id <> $1 AND NOT deleted AND NOT global_sharing_blocked AND summary <> ''
ORDER BY updated_at DESC
LIMIT $2`, excludeUserID, limit)
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

func (s *Store) UpsertGlobalInsight(ctx context.Context, gi graphmodel.GlobalInsight) (graphmodel.GlobalInsight, error) {
	if gi.CreatedAt.IsZero() {
		gi.CreatedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO global_insights (id, content, topic_ids, use_count, created_at)
VALUES ($1, $2, $3, 1, $4)
ON CONFLICT (id) DO UPDATE
  SET content = EXCLUDED.content, topic_ids = EXCLUDED.topic_ids, use_count = global_insights.use_count + 1
RETURNING id, content, topic_ids, use_count, created_at`,
		gi.ID, gi.Content, gi.TopicIDs, gi.CreatedAt)
	var out graphmodel.GlobalInsight
	if err := row.Scan(&out.ID, &out.Content, &out.TopicIDs, &out.UseCount, &out.CreatedAt); err != nil {
		return graphmodel.GlobalInsight{}, err
	}
	return out, nil
}
