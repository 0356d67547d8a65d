package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

func (s *Store) ListIdleConversations(ctx context.Context, idleThreshold int64, limit int) ([]graphmodel.Conversation, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(idleThreshold) * time.Second)
	rows, err := s.pool.Query(ctx, `
SELECT `+conversationColumns+` FROM conversations
WHERE NOT processed AND NOT deleted AND updated_at <= $1
ORDER BY updated_at ASC
LIMIT $2`, cutoff, limit)
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

func (s *Store) appendProcessingLog(ctx context.Context, tx pgx.Tx, log graphmodel.ProcessingLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
INSERT INTO processing_log (id, conversation_id, user_id, ts, is_useful, reason, topics_json, insight_count)
VALUES ($1, $2, $3, NOW(), $4, $5, $6, $7)`,
		log.ID, log.ConversationID, log.UserID, log.IsUseful, log.Reason, log.TopicsJSON, log.InsightCount)
	return err
}

func (s *Store) MarkConversationNotUseful(ctx context.Context, conversationID, reason string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var userID string
		if err := tx.QueryRow(ctx, `SELECT user_id FROM conversations WHERE id = $1`, conversationID).Scan(&userID); err != nil {
			if errNoRows(err) {
				return store.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `
UPDATE conversations SET processed = TRUE, is_useful = $2, usefulness_reason = $3 WHERE id = $1`,
			conversationID, int(graphmodel.UsefulnessFalse), reason); err != nil {
			return err
		}
		return s.appendProcessingLog(ctx, tx, graphmodel.ProcessingLog{
			ConversationID: conversationID,
			UserID:         userID,
			IsUseful:       false,
			Reason:         reason,
			TopicsJSON:     "[]",
		})
	})
}

// PromoteConversation applies the full useful-branch write set step
// 5 inside one transaction: topic creation/linking, co-occurrence
// reinforcement, insight persistence, optional global-insight promotion,
// the verdict stamp, and the processing-log row.
func (s *Store) PromoteConversation(ctx context.Context, p store.Promotion) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, p.ConversationID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}

		topicIDs := make([]string, 0, len(p.Topics))
		for _, name := range p.Topics {
			normalized := graphmodel.NormalizeTopicName(name)
			if normalized == "" {
				continue
			}
			var id string
			row := tx.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO topics (id, name) VALUES ($1, $2)
  ON CONFLICT (name) DO NOTHING
  RETURNING id
)
SELECT id FROM ins
UNION ALL
SELECT id FROM topics WHERE name = $2
LIMIT 1`, uuid.NewString(), normalized)
			if err := row.Scan(&id); err != nil {
				return err
			}
			topicIDs = append(topicIDs, id)
			if _, err := tx.Exec(ctx, `
INSERT INTO conversation_topics (conversation_id, topic_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, p.ConversationID, id); err != nil {
				return err
			}
		}

		for i := 0; i < len(topicIDs); i++ {
			for j := i + 1; j < len(topicIDs); j++ {
				a, b := relationPair(topicIDs[i], topicIDs[j])
				if _, err := tx.Exec(ctx, `
INSERT INTO topic_relations (id, topic_a, topic_b, strength, relation_type)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (topic_a, topic_b) DO UPDATE
  SET strength = LEAST(topic_relations.strength + $6, 1.0)`,
					uuid.NewString(), a, b, graphmodel.DefaultRelationStrength, graphmodel.DefaultRelationType, graphmodel.RelationReinforcement); err != nil {
					return err
				}
			}
		}

		for _, content := range p.Insights {
			if content == "" {
				continue
			}
			insightID := uuid.NewString()
			if _, err := tx.Exec(ctx, `
INSERT INTO insights (id, conversation_id, user_id, content, importance_score, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
				insightID, p.ConversationID, p.UserID, content, graphmodel.InsightImportanceIngested, time.Now().UTC()); err != nil {
				return err
			}
			for _, topicID := range topicIDs {
				if _, err := tx.Exec(ctx, `
INSERT INTO insight_topics (insight_id, topic_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, insightID, topicID); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Exec(ctx, `
UPDATE conversations SET summary = $2, processed = TRUE, is_useful = $3, usefulness_reason = $4
WHERE id = $1`, p.ConversationID, p.Summary, int(graphmodel.UsefulnessTrue), p.UsefulnessReason); err != nil {
			return err
		}

		if p.ConsentGlobal {
			giID := graphmodel.GlobalInsightID(p.ConversationID)
			if _, err := tx.Exec(ctx, `
INSERT INTO global_insights (id, content, topic_ids, use_count, created_at)
VALUES ($1, $2, $3, 1, $4)
ON CONFLICT (id) DO UPDATE
  SET content = EXCLUDED.content, topic_ids = EXCLUDED.topic_ids, use_count = global_insights.use_count + 1`,
				giID, p.Summary, topicIDs, time.Now().UTC()); err != nil {
				return err
			}
		}

		topicsJSON, err := json.Marshal(p.Topics)
		if err != nil {
			return err
		}
		return s.appendProcessingLog(ctx, tx, graphmodel.ProcessingLog{
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
			IsUseful:       true,
			Reason:         p.UsefulnessReason,
			TopicsJSON:     string(topicsJSON),
			InsightCount:   len(p.Insights),
		})
	})
}

func (s *Store) GetProcessingLogs(ctx context.Context, limit int) ([]graphmodel.ProcessingLog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, conversation_id, user_id, ts, is_useful, reason, topics_json, insight_count
FROM processing_log ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graphmodel.ProcessingLog{}
	for rows.Next() {
		var l graphmodel.ProcessingLog
		if err := rows.Scan(&l.ID, &l.ConversationID, &l.UserID, &l.Timestamp, &l.IsUseful, &l.Reason, &l.TopicsJSON, &l.InsightCount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) GetLatestProcessingLog(ctx context.Context, conversationID string) (graphmodel.ProcessingLog, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, conversation_id, user_id, ts, is_useful, reason, topics_json, insight_count
FROM processing_log WHERE conversation_id = $1 ORDER BY ts DESC LIMIT 1`, conversationID)
	var l graphmodel.ProcessingLog
	if err := row.Scan(&l.ID, &l.ConversationID, &l.UserID, &l.Timestamp, &l.IsUseful, &l.Reason, &l.TopicsJSON, &l.InsightCount); err != nil {
		if errNoRows(err) {
			return graphmodel.ProcessingLog{}, false, nil
		}
		return graphmodel.ProcessingLog{}, false, err
	}
	return l, true, nil
}

func (s *Store) GetProcessorStats(ctx context.Context) (store.ProcessorStats, error) {
	row := s.pool.QueryRow(ctx, `
SELECT
  COUNT(*) FILTER (WHERE NOT processed AND NOT deleted),
  COUNT(*) FILTER (WHERE processed AND NOT deleted),
  COUNT(*) FILTER (WHERE processed AND NOT deleted AND is_useful = $1),
  COUNT(*) FILTER (WHERE processed AND NOT deleted AND is_useful = $2)
FROM conversations`, int(graphmodel.UsefulnessTrue), int(graphmodel.UsefulnessFalse))
	var stats store.ProcessorStats
	if err := row.Scan(&stats.PendingCount, &stats.ProcessedCount, &stats.UsefulCount, &stats.NotUsefulCount); err != nil {
		return store.ProcessorStats{}, err
	}
	return stats, nil
}

func (s *Store) GetConversationStatus(ctx context.Context, conversationID string) (graphmodel.Conversation, error) {
	return s.GetConversation(ctx, conversationID)
}
