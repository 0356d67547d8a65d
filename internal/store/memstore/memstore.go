// Package memstore is an in-process, mutex-protected mirror of store.GraphStore.
// It backs unit tests and a no-database development mode, grounded on the
// teacher's memory_graph.go / chat_store_memory.go fallback pattern.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

// Store is an in-memory store.GraphStore implementation.
type Store struct {
	mu sync.RWMutex

	users         map[string]graphmodel.User
	conversations map[string]*graphmodel.Conversation
	messages      map[string][]graphmodel.Message // conversationID -> ordered messages

	topics      map[string]graphmodel.Topic // topicID -> Topic
	topicByName map[string]string           // normalized name -> topicID
	relations   map[string]*graphmodel.TopicRelation
	convTopics  map[string]map[string]bool // conversationID -> topicID set

	insights      map[string]graphmodel.Insight
	insightTopics map[string][]string // insightID -> topicIDs

	globalInsights map[string]graphmodel.GlobalInsight
	processingLogs []graphmodel.ProcessingLog
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		users:          make(map[string]graphmodel.User),
		conversations:  make(map[string]*graphmodel.Conversation),
		messages:       make(map[string][]graphmodel.Message),
		topics:         make(map[string]graphmodel.Topic),
		topicByName:    make(map[string]string),
		relations:      make(map[string]*graphmodel.TopicRelation),
		convTopics:     make(map[string]map[string]bool),
		insights:       make(map[string]graphmodel.Insight),
		insightTopics:  make(map[string][]string),
		globalInsights: make(map[string]graphmodel.GlobalInsight),
	}
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() {}

var _ store.GraphStore = (*Store)(nil)

func relationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// --- Users ---

func (s *Store) GetOrCreateUser(_ context.Context, userID string) (graphmodel.User, error) {
	if userID == "" {
		return graphmodel.User{}, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u, nil
	}
	u := graphmodel.User{ID: userID, CreatedAt: time.Now().UTC()}
	s.users[userID] = u
	return u, nil
}

func (s *Store) SetConsentGlobal(_ context.Context, userID string, consent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = graphmodel.User{ID: userID, CreatedAt: time.Now().UTC()}
	}
	u.ConsentGlobal = consent
	s.users[userID] = u
	return nil
}

// --- Conversations & messages ---

func (s *Store) CreateConversation(_ context.Context, userID string) (graphmodel.Conversation, error) {
	if userID == "" {
		return graphmodel.Conversation{}, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	c := &graphmodel.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.conversations[c.ID] = c
	s.mu.Unlock()
	return *c, nil
}

func (s *Store) GetConversation(_ context.Context, conversationID string) (graphmodel.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return graphmodel.Conversation{}, store.ErrNotFound
	}
	return *c, nil
}

func (s *Store) AddMessage(_ context.Context, conversationID string, role graphmodel.Role, content string) (graphmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return graphmodel.Message{}, store.ErrNotFound
	}
	msg := graphmodel.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	c.MessageCount = len(s.messages[conversationID])
	return msg, nil
}

func (s *Store) GetMessages(_ context.Context, conversationID string) ([]graphmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]graphmodel.Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

func (s *Store) UpdateConversationActivity(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetConversationGlobalSharingBlocked(_ context.Context, conversationID string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	c.GlobalSharingBlocked = blocked
	return nil
}

func (s *Store) IsConversationGlobalSharingBlocked(_ context.Context, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return false, store.ErrNotFound
	}
	return c.GlobalSharingBlocked, nil
}

func (s *Store) GetUserActiveConversations(_ context.Context, userID string, limit int) ([]graphmodel.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graphmodel.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID && !c.Deleted {
			out = append(out, *c)
		}
	}
	sortConversationsByUpdatedDesc(out)
	return clampConversations(out, limit), nil
}

func (s *Store) DeleteConversationFromUserGraph(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	if c.UserID != userID {
		return store.ErrForbidden
	}
	for id, in := range s.insights {
		if in.ConversationID == conversationID {
			in.UserID = graphmodel.AnonymousUserID
			s.insights[id] = in
		}
	}
	delete(s.convTopics, conversationID)
	now := time.Now().UTC()
	c.Deleted = true
	c.DeletedAt = &now
	return nil
}
