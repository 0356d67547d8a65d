package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

func (s *Store) GetOrCreateTopic(_ context.Context, name string) (graphmodel.Topic, error) {
	normalized := graphmodel.NormalizeTopicName(name)
	if normalized == "" {
		return graphmodel.Topic{}, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.topicByName[normalized]; ok {
		return s.topics[id], nil
	}
	t := graphmodel.Topic{ID: uuid.NewString(), Name: normalized, CreatedAt: time.Now().UTC()}
	s.topics[t.ID] = t
	s.topicByName[normalized] = t.ID
	return t, nil
}

// LinkTopics is the reinforcing edge upsert: a new pair is created at
// the given strength (default 0.5), a repeated pair adds the co-occurrence
// reinforcement of 0.1, clamped to 1.
func (s *Store) LinkTopics(_ context.Context, topicA, topicB string, strength float64) (graphmodel.TopicRelation, error) {
	if topicA == "" || topicB == "" || topicA == topicB {
		return graphmodel.TopicRelation{}, store.ErrInvalidInput
	}
	if strength <= 0 {
		strength = graphmodel.DefaultRelationStrength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := relationKey(topicA, topicB)
	if rel, ok := s.relations[key]; ok {
		rel.Strength = graphmodel.ClampStrength(rel.Strength + graphmodel.RelationReinforcement)
		return *rel, nil
	}
	rel := &graphmodel.TopicRelation{
		ID:           uuid.NewString(),
		SourceTopic:  topicA,
		TargetTopic:  topicB,
		Strength:     graphmodel.ClampStrength(strength),
		RelationType: graphmodel.DefaultRelationType,
	}
	s.relations[key] = rel
	return *rel, nil
}

func (s *Store) LinkConversationToTopics(_ context.Context, conversationID string, topicIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return store.ErrNotFound
	}
	set, ok := s.convTopics[conversationID]
	if !ok {
		set = make(map[string]bool)
		s.convTopics[conversationID] = set
	}
	for _, id := range topicIDs {
		set[id] = true
	}
	return nil
}

func (s *Store) GetAllUserTopics(_ context.Context, userID string) ([]graphmodel.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []graphmodel.Topic
	for convID, c := range s.conversations {
		if c.UserID != userID || c.Deleted {
			continue
		}
		for topicID := range s.convTopics[convID] {
			if seen[topicID] {
				continue
			}
			seen[topicID] = true
			out = append(out, s.topics[topicID])
		}
	}
	return out, nil
}

// GetSuggestedTopics returns topics related to currentTopics via a
// TopicRelation, excluding currentTopics themselves, ranked by strength.
func (s *Store) GetSuggestedTopics(_ context.Context, currentTopics []string, limit int) ([]graphmodel.Topic, error) {
	current := make(map[string]bool, len(currentTopics))
	for _, t := range currentTopics {
		current[t] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		topic    graphmodel.Topic
		strength float64
	}
	byID := make(map[string]scored)
	for _, rel := range s.relations {
		for _, pair := range [][2]string{{rel.SourceTopic, rel.TargetTopic}, {rel.TargetTopic, rel.SourceTopic}} {
			src, dst := pair[0], pair[1]
			if !current[src] || current[dst] {
				continue
			}
			topic, ok := s.topics[dst]
			if !ok {
				continue
			}
			if existing, ok := byID[dst]; !ok || rel.Strength > existing.strength {
				byID[dst] = scored{topic: topic, strength: rel.Strength}
			}
		}
	}
	list := make([]scored, 0, len(byID))
	for _, v := range byID {
		list = append(list, v)
	}
	sortScoredDesc(list)
	out := make([]graphmodel.Topic, 0, len(list))
	for _, v := range list {
		out = append(out, v.topic)
	}
	return clampTopics(out, limit), nil
}

func sortScoredDesc(list []struct {
	topic    graphmodel.Topic
	strength float64
}) {
	for i := 1; i < len(list); i++ {
		j := i
		for j > 0 && list[j-1].strength < list[j].strength {
			list[j-1], list[j] = list[j], list[j-1]
			j--
		}
	}
}
