package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

func (s *Store) withTopicNames(in graphmodel.Insight) graphmodel.Insight {
	ids := s.insightTopics[in.ID]
	if len(ids) == 0 {
		return in
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.topics[id]; ok {
			names = append(names, t.Name)
		}
	}
	in.Topics = names
	return in
}

func (s *Store) SaveInsight(_ context.Context, in graphmodel.Insight, topicIDs []string) (graphmodel.Insight, error) {
	if in.ConversationID == "" || in.UserID == "" || in.Content == "" {
		return graphmodel.Insight{}, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.ImportanceScore == 0 {
		in.ImportanceScore = graphmodel.InsightImportanceExtracted
	}
	s.insights[in.ID] = in
	s.insightTopics[in.ID] = append([]string{}, topicIDs...)
	return s.withTopicNames(in), nil
}

func (s *Store) GetRelatedInsights(_ context.Context, userID string, topicIDs []string, limit int) ([]graphmodel.Insight, error) {
	want := make(map[string]bool, len(topicIDs))
	for _, id := range topicIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graphmodel.Insight
	for id, in := range s.insights {
		if in.UserID != userID {
			continue
		}
		matched := false
		for _, t := range s.insightTopics[id] {
			if want[t] {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, s.withTopicNames(in))
	}
	sortInsightsByCreatedDesc(out)
	return clampInsights(out, limit), nil
}

func (s *Store) GetRecentUserInsights(_ context.Context, userID string, limit int) ([]graphmodel.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graphmodel.Insight
	for _, in := range s.insights {
		if in.UserID == userID {
			out = append(out, s.withTopicNames(in))
		}
	}
	sortInsightsByCreatedDesc(out)
	return clampInsights(out, limit), nil
}

// GetGlobalInsights returns the community pool: insights from other users
// whose owning conversation is not globalSharingBlocked.
func (s *Store) GetGlobalInsights(_ context.Context, excludeUserID string, limit int) ([]graphmodel.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graphmodel.Insight
	for _, in := range s.insights {
		if in.UserID == excludeUserID {
			continue
		}
		conv, ok := s.conversations[in.ConversationID]
		if !ok || conv.GlobalSharingBlocked {
			continue
		}
		out = append(out, s.withTopicNames(in))
	}
	sortInsightsByCreatedDesc(out)
	return clampInsights(out, limit), nil
}

func (s *Store) GetGlobalConversationSummaries(_ context.Context, excludeUserID string, limit int) ([]graphmodel.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graphmodel.Conversation
	for _, c := range s.conversations {
		if c.UserID == excludeUserID || c.Deleted || c.GlobalSharingBlocked || c.Summary == "" {
			continue
		}
		out = append(out, *c)
	}
	sortConversationsByUpdatedDesc(out)
	return clampConversations(out, limit), nil
}

func (s *Store) UpsertGlobalInsight(_ context.Context, gi graphmodel.GlobalInsight) (graphmodel.GlobalInsight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.globalInsights[gi.ID]; ok {
		existing.Content = gi.Content
		existing.TopicIDs = gi.TopicIDs
		existing.UseCount++
		s.globalInsights[gi.ID] = existing
		return existing, nil
	}
	if gi.CreatedAt.IsZero() {
		gi.CreatedAt = time.Now().UTC()
	}
	gi.UseCount = 1
	s.globalInsights[gi.ID] = gi
	return gi, nil
}
