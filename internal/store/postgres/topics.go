package postgres

import (
	"context"

	"github.com/google/uuid"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

func (s *Store) GetOrCreateTopic(ctx context.Context, name string) (graphmodel.Topic, error) {
	normalized := graphmodel.NormalizeTopicName(name)
	if normalized == "" {
		return graphmodel.Topic{}, store.ErrInvalidInput
	}
	row := s.pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO topics (id, name) VALUES ($1, $2)
  ON CONFLICT (name) DO NOTHING
  RETURNING id, name, description, created_at
)
SELECT id, name, description, created_at FROM ins
UNION ALL
SELECT id, name, description, created_at FROM topics WHERE name = $2
LIMIT 1`, uuid.NewString(), normalized)
	var t graphmodel.Topic
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
		return graphmodel.Topic{}, err
	}
	return t, nil
}

// relationPair orders two topic ids so (a,b) and (b,a) collide on the
// topic_relations unique constraint, keeping exactly one edge per pair.
func relationPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func (s *Store) LinkTopics(ctx context.Context, topicA, topicB string, strength float64) (graphmodel.TopicRelation, error) {
	if topicA == "" || topicB == "" || topicA == topicB {
		return graphmodel.TopicRelation{}, store.ErrInvalidInput
	}
	if strength <= 0 {
		strength = graphmodel.DefaultRelationStrength
	}
	a, b := relationPair(topicA, topicB)
	row := s.pool.QueryRow(ctx, `
INSERT INTO topic_relations (id, topic_a, topic_b, strength, relation_type)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (topic_a, topic_b) DO UPDATE
  SET strength = LEAST(topic_relations.strength + $6, 1.0)
RETURNING id, topic_a, topic_b, strength, relation_type`,
		uuid.NewString(), a, b, graphmodel.ClampStrength(strength), graphmodel.DefaultRelationType, graphmodel.RelationReinforcement)
	var rel graphmodel.TopicRelation
	if err := row.Scan(&rel.ID, &rel.SourceTopic, &rel.TargetTopic, &rel.Strength, &rel.RelationType); err != nil {
		return graphmodel.TopicRelation{}, err
	}
	return rel, nil
}

func (s *Store) LinkConversationToTopics(ctx context.Context, conversationID string, topicIDs []string) error {
	if len(topicIDs) == 0 {
		return nil
	}
	for _, topicID := range topicIDs {
		if _, err := s.pool.Exec(ctx, `
INSERT INTO conversation_topics (conversation_id, topic_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, conversationID, topicID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetAllUserTopics(ctx context.Context, userID string) ([]graphmodel.Topic, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT t.id, t.name, t.description, t.created_at
FROM topics t
JOIN conversation_topics ct ON ct.topic_id = t.id
JOIN conversations c ON c.id = ct.conversation_id
WHERE c.user_id = $1 AND NOT c.deleted`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graphmodel.Topic{}
	for rows.Next() {
		var t graphmodel.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetSuggestedTopics(ctx context.Context, currentTopics []string, limit int) ([]graphmodel.Topic, error) {
	if len(currentTopics) == 0 {
		return []graphmodel.Topic{}, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT t.id, t.name, t.description, t.created_at, MAX(r.strength) AS best
FROM topic_relations r
JOIN topics t ON t.id = CASE WHEN r.topic_a = ANY($1) THEN r.topic_b ELSE r.topic_a END
WHERE (r.topic_a = ANY($1) OR r.topic_b = ANY($1))
  AND NOT (r.topic_a = ANY($1) AND r.topic_b = ANY($1))
GROUP BY t.id, t.name, t.description, t.created_at
ORDER BY best DESC
LIMIT $2`, currentTopics, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graphmodel.Topic{}
	for rows.Next() {
		var t graphmodel.Topic
		var best float64
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &best); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
