package postgres

import (
	"context"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

// buildKnowledgeMap computes node frequency (distinct conversations among
// the given ones linked to each topic), normalizes against the busiest
// topic, and restricts edges to the given topic set so the map never
// contains a dangling edge.
func (s *Store) buildKnowledgeMap(ctx context.Context, topicsQuery string, topicsArgs []any, insights []graphmodel.Insight, conversations []graphmodel.Conversation) (store.KnowledgeMap, error) {
	topicRows, err := s.pool.Query(ctx, topicsQuery, topicsArgs...)
	if err != nil {
		return store.KnowledgeMap{}, err
	}
	var topics []graphmodel.Topic
	topicIDs := map[string]bool{}
	for topicRows.Next() {
		var t graphmodel.Topic
		if err := topicRows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			topicRows.Close()
			return store.KnowledgeMap{}, err
		}
		topics = append(topics, t)
		topicIDs[t.ID] = true
	}
	topicRows.Close()
	if err := topicRows.Err(); err != nil {
		return store.KnowledgeMap{}, err
	}

	ids := make([]string, 0, len(topicIDs))
	for id := range topicIDs {
		ids = append(ids, id)
	}

	convIDs := make([]string, 0, len(conversations))
	for _, c := range conversations {
		convIDs = append(convIDs, c.ID)
	}

	freq := map[string]int{}
	maxFreq := 0
	if len(ids) > 0 {
		freqRows, err := s.pool.Query(ctx, `
SELECT topic_id, COUNT(DISTINCT conversation_id) FROM conversation_topics
WHERE topic_id = ANY($1) AND conversation_id = ANY($2)
GROUP BY topic_id`, ids, convIDs)
		if err != nil {
			return store.KnowledgeMap{}, err
		}
		for freqRows.Next() {
			var id string
			var c int
			if err := freqRows.Scan(&id, &c); err != nil {
				freqRows.Close()
				return store.KnowledgeMap{}, err
			}
			freq[id] = c
			if c > maxFreq {
				maxFreq = c
			}
		}
		freqRows.Close()
		if err := freqRows.Err(); err != nil {
			return store.KnowledgeMap{}, err
		}
	}

	nodes := make([]store.GraphNode, 0, len(topics))
	for _, t := range topics {
		f := freq[t.ID]
		normalized := 0.0
		if maxFreq > 0 {
			normalized = float64(f) / float64(maxFreq)
		}
		nodes = append(nodes, store.GraphNode{TopicID: t.ID, Name: t.Name, Frequency: f, NormalizedFrequency: normalized})
	}

	var relations []graphmodel.TopicRelation
	var edges []store.GraphEdge
	if len(ids) > 0 {
		relRows, err := s.pool.Query(ctx, `
SELECT id, topic_a, topic_b, strength, relation_type FROM topic_relations
WHERE topic_a = ANY($1) AND topic_b = ANY($1)`, ids)
		if err != nil {
			return store.KnowledgeMap{}, err
		}
		for relRows.Next() {
			var rel graphmodel.TopicRelation
			if err := relRows.Scan(&rel.ID, &rel.SourceTopic, &rel.TargetTopic, &rel.Strength, &rel.RelationType); err != nil {
				relRows.Close()
				return store.KnowledgeMap{}, err
			}
			relations = append(relations, rel)
			edges = append(edges, store.GraphEdge{Source: rel.SourceTopic, Target: rel.TargetTopic, Strength: rel.Strength, Type: rel.RelationType})
		}
		relRows.Close()
		if err := relRows.Err(); err != nil {
			return store.KnowledgeMap{}, err
		}
	}

	return store.KnowledgeMap{
		Stats: store.GraphStats{
			TopicCount:        len(topics),
			RelationCount:     len(relations),
			InsightCount:      len(insights),
			ConversationCount: len(conversations),
		},
		Nodes:         nodes,
		Edges:         edges,
		Topics:        topics,
		Relations:     relations,
		Insights:      insights,
		Conversations: conversations,
	}, nil
}

func (s *Store) GetUserKnowledgeMap(ctx context.Context, userID string) (store.KnowledgeMap, error) {
	conversations, err := s.GetUserActiveConversations(ctx, userID, 0)
	if err != nil {
		return store.KnowledgeMap{}, err
	}
	insights, err := s.GetRecentUserInsights(ctx, userID, 0)
	if err != nil {
		return store.KnowledgeMap{}, err
	}
	return s.buildKnowledgeMap(ctx, `
SELECT DISTINCT t.id, t.name, t.description, t.created_at
FROM topics t
JOIN conversation_topics ct ON ct.topic_id = t.id
JOIN conversations c ON c.id = ct.conversation_id
WHERE c.user_id = $1 AND NOT c.deleted`, []any{userID}, insights, conversations)
}

func (s *Store) GetGlobalKnowledgeMap(ctx context.Context) (store.KnowledgeMap, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+conversationColumns+` FROM conversations
WHERE NOT deleted AND NOT global_sharing_blocked AND processed
ORDER BY updated_at DESC`)
	if err != nil {
		return store.KnowledgeMap{}, err
	}
	var conversations []graphmodel.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return store.KnowledgeMap{}, err
		}
		conversations = append(conversations, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return store.KnowledgeMap{}, err
	}

	giRows, err := s.pool.Query(ctx, `SELECT id, content, topic_ids, use_count, created_at FROM global_insights`)
	if err != nil {
		return store.KnowledgeMap{}, err
	}
	var globalInsights []graphmodel.GlobalInsight
	for giRows.Next() {
		var gi graphmodel.GlobalInsight
		if err := giRows.Scan(&gi.ID, &gi.Content, &gi.TopicIDs, &gi.UseCount, &gi.CreatedAt); err != nil {
			giRows.Close()
			return store.KnowledgeMap{}, err
		}
		globalInsights = append(globalInsights, gi)
	}
	giRows.Close()
	if err := giRows.Err(); err != nil {
		return store.KnowledgeMap{}, err
	}

	km, err := s.buildKnowledgeMap(ctx, `
SELECT DISTINCT t.id, t.name, t.description, t.created_at
FROM topics t
JOIN conversation_topics ct ON ct.topic_id = t.id
JOIN conversations c ON c.id = ct.conversation_id
WHERE NOT c.deleted AND NOT c.global_sharing_blocked AND c.processed`, nil, nil, conversations)
	if err != nil {
		return store.KnowledgeMap{}, err
	}
	km.GlobalInsights = globalInsights
	km.Stats.InsightCount = len(globalInsights)
	return km, nil
}
