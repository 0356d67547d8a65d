package memstore

import (
	"context"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

// buildKnowledgeMap computes node frequencies over the given conversations
// and edges over the given set of topic ids, restricted to the relations
// whose endpoints are both in the set, so the resulting graph never has a
// dangling edge.
func (s *Store) buildKnowledgeMap(topicIDs map[string]bool, insights []graphmodel.Insight, conversations []graphmodel.Conversation) store.KnowledgeMap {
	freq := make(map[string]int, len(topicIDs))
	for _, c := range conversations {
		for topicID := range s.convTopics[c.ID] {
			if topicIDs[topicID] {
				freq[topicID]++
			}
		}
	}
	maxFreq := 0
	for _, f := range freq {
		if f > maxFreq {
			maxFreq = f
		}
	}

	nodes := make([]store.GraphNode, 0, len(topicIDs))
	topics := make([]graphmodel.Topic, 0, len(topicIDs))
	for id := range topicIDs {
		t, ok := s.topics[id]
		if !ok {
			continue
		}
		topics = append(topics, t)
		f := freq[id]
		normalized := 0.0
		if maxFreq > 0 {
			normalized = float64(f) / float64(maxFreq)
		}
		nodes = append(nodes, store.GraphNode{
			TopicID:             id,
			Name:                t.Name,
			Frequency:           f,
			NormalizedFrequency: normalized,
		})
	}

	edges := make([]store.GraphEdge, 0)
	relations := make([]graphmodel.TopicRelation, 0)
	for _, rel := range s.relations {
		if !topicIDs[rel.SourceTopic] || !topicIDs[rel.TargetTopic] {
			continue
		}
		relations = append(relations, *rel)
		edges = append(edges, store.GraphEdge{
			Source:   rel.SourceTopic,
			Target:   rel.TargetTopic,
			Strength: rel.Strength,
			Type:     rel.RelationType,
		})
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
	}
}

func (s *Store) GetUserKnowledgeMap(_ context.Context, userID string) (store.KnowledgeMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topicIDs := make(map[string]bool)
	var conversations []graphmodel.Conversation
	for convID, c := range s.conversations {
		if c.UserID != userID || c.Deleted {
			continue
		}
		conversations = append(conversations, *c)
		for topicID := range s.convTopics[convID] {
			topicIDs[topicID] = true
		}
	}
	sortConversationsByUpdatedDesc(conversations)

	var insights []graphmodel.Insight
	for _, in := range s.insights {
		if in.UserID == userID {
			insights = append(insights, s.withTopicNames(in))
		}
	}
	sortInsightsByCreatedDesc(insights)

	return s.buildKnowledgeMap(topicIDs, insights, conversations), nil
}

func (s *Store) GetGlobalKnowledgeMap(_ context.Context) (store.KnowledgeMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topicIDs := make(map[string]bool)
	var conversations []graphmodel.Conversation
	for convID, c := range s.conversations {
		if c.Deleted || c.GlobalSharingBlocked || !c.Processed {
			continue
		}
		conversations = append(conversations, *c)
		for topicID := range s.convTopics[convID] {
			topicIDs[topicID] = true
		}
	}
	sortConversationsByUpdatedDesc(conversations)

	var globalInsights []graphmodel.GlobalInsight
	for _, gi := range s.globalInsights {
		globalInsights = append(globalInsights, gi)
	}

	km := s.buildKnowledgeMap(topicIDs, nil, conversations)
	km.GlobalInsights = globalInsights
	km.Stats.InsightCount = len(globalInsights)
	return km, nil
}
