package memstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

// ListIdleConversations returns unprocessed, non-deleted conversations whose
// last activity is older than idleThreshold seconds.
func (s *Store) ListIdleConversations(_ context.Context, idleThreshold int64, limit int) ([]graphmodel.Conversation, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(idleThreshold) * time.Second)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graphmodel.Conversation
	for _, c := range s.conversations {
		if c.Deleted || c.Processed {
			continue
		}
		if c.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, *c)
	}
	sortConversationsByUpdatedAsc(out)
	return clampConversations(out, limit), nil
}

func (s *Store) appendProcessingLog(log graphmodel.ProcessingLog) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	s.processingLogs = append(s.processingLogs, log)
}

// MarkConversationNotUseful stamps the not-useful verdict and appends its
// processing-log row in the same critical section.
func (s *Store) MarkConversationNotUseful(_ context.Context, conversationID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	c.Processed = true
	c.IsUseful = graphmodel.UsefulnessFalse
	c.UsefulnessReason = reason
	s.appendProcessingLog(graphmodel.ProcessingLog{
		ConversationID: conversationID,
		UserID:         c.UserID,
		IsUseful:       false,
		Reason:         reason,
		TopicsJSON:     "[]",
	})
	return nil
}

// PromoteConversation applies the full useful-branch write set step
// 5 as a single atomic unit: topic creation/linking, co-occurrence
// reinforcement, insight persistence, optional global-insight promotion,
// the verdict stamp, and the processing-log row.
func (s *Store) PromoteConversation(_ context.Context, p store.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[p.ConversationID]
	if !ok {
		return store.ErrNotFound
	}

	topicIDs := make([]string, 0, len(p.Topics))
	for _, name := range p.Topics {
		normalized := graphmodel.NormalizeTopicName(name)
		if normalized == "" {
			continue
		}
		id, ok := s.topicByName[normalized]
		if !ok {
			t := graphmodel.Topic{ID: uuid.NewString(), Name: normalized, CreatedAt: time.Now().UTC()}
			s.topics[t.ID] = t
			s.topicByName[normalized] = t.ID
			id = t.ID
		}
		topicIDs = append(topicIDs, id)
	}

	for i := 0; i < len(topicIDs); i++ {
		for j := i + 1; j < len(topicIDs); j++ {
			key := relationKey(topicIDs[i], topicIDs[j])
			if rel, ok := s.relations[key]; ok {
				rel.Strength = graphmodel.ClampStrength(rel.Strength + graphmodel.RelationReinforcement)
			} else {
				s.relations[key] = &graphmodel.TopicRelation{
					ID:           uuid.NewString(),
					SourceTopic:  topicIDs[i],
					TargetTopic:  topicIDs[j],
					Strength:     graphmodel.DefaultRelationStrength,
					RelationType: graphmodel.DefaultRelationType,
				}
			}
		}
	}

	set, ok := s.convTopics[p.ConversationID]
	if !ok {
		set = make(map[string]bool)
		s.convTopics[p.ConversationID] = set
	}
	for _, id := range topicIDs {
		set[id] = true
	}

	for _, content := range p.Insights {
		if content == "" {
			continue
		}
		in := graphmodel.Insight{
			ID:              uuid.NewString(),
			ConversationID:  p.ConversationID,
			UserID:          p.UserID,
			Content:         content,
			ImportanceScore: graphmodel.InsightImportanceIngested,
			CreatedAt:       time.Now().UTC(),
		}
		s.insights[in.ID] = in
		s.insightTopics[in.ID] = append([]string{}, topicIDs...)
	}

	c.Summary = p.Summary
	c.Processed = true
	c.IsUseful = graphmodel.UsefulnessTrue
	c.UsefulnessReason = p.UsefulnessReason

	if p.ConsentGlobal {
		giID := graphmodel.GlobalInsightID(p.ConversationID)
		content := p.Summary
		if existing, ok := s.globalInsights[giID]; ok {
			existing.Content = content
			existing.TopicIDs = topicIDs
			existing.UseCount++
			s.globalInsights[giID] = existing
		} else {
			s.globalInsights[giID] = graphmodel.GlobalInsight{
				ID:        giID,
				Content:   content,
				TopicIDs:  topicIDs,
				UseCount:  1,
				CreatedAt: time.Now().UTC(),
			}
		}
	}

	topicsJSON, _ := json.Marshal(p.Topics)
	s.appendProcessingLog(graphmodel.ProcessingLog{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
		IsUseful:       true,
		Reason:         p.UsefulnessReason,
		TopicsJSON:     string(topicsJSON),
		InsightCount:   len(p.Insights),
	})
	return nil
}

func (s *Store) GetProcessingLogs(_ context.Context, limit int) ([]graphmodel.ProcessingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]graphmodel.ProcessingLog, len(s.processingLogs))
	copy(out, s.processingLogs)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetLatestProcessingLog(_ context.Context, conversationID string) (graphmodel.ProcessingLog, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.processingLogs) - 1; i >= 0; i-- {
		if s.processingLogs[i].ConversationID == conversationID {
			return s.processingLogs[i], true, nil
		}
	}
	return graphmodel.ProcessingLog{}, false, nil
}

func (s *Store) GetProcessorStats(_ context.Context) (store.ProcessorStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats store.ProcessorStats
	for _, c := range s.conversations {
		if c.Deleted {
			continue
		}
		if !c.Processed {
			stats.PendingCount++
			continue
		}
		stats.ProcessedCount++
		switch c.IsUseful {
		case graphmodel.UsefulnessTrue:
			stats.UsefulCount++
		case graphmodel.UsefulnessFalse:
			stats.NotUsefulCount++
		}
	}
	return stats, nil
}

func (s *Store) GetConversationStatus(_ context.Context, conversationID string) (graphmodel.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return graphmodel.Conversation{}, store.ErrNotFound
	}
	return *c, nil
}
