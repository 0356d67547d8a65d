package memstore

import (
	"context"
	"testing"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

func TestSoftDeleteLeavesGlobalUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetOrCreateUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	conv, err := s.CreateConversation(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	err = s.PromoteConversation(ctx, store.Promotion{
		ConversationID:   conv.ID,
		UserID:           "alice",
		Summary:          "discussed TLS handshakes",
		Topics:           []string{"tls handshake"},
		Insights:         []string{"TLS 1.3 drops the second round trip"},
		ConsentGlobal:    true,
		UsefulnessReason: "contains reusable technical insight",
	})
	if err != nil {
		t.Fatal(err)
	}

	before, err := s.GetGlobalKnowledgeMap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(before.GlobalInsights) != 1 {
		t.Fatalf("expected 1 global insight before delete, got %d", len(before.GlobalInsights))
	}

	if err := s.DeleteConversationFromUserGraph(ctx, conv.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	after, err := s.GetGlobalKnowledgeMap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.GlobalInsights) != len(before.GlobalInsights) {
		t.Fatalf("soft-delete changed the global insight pool: before=%d after=%d", len(before.GlobalInsights), len(after.GlobalInsights))
	}

	userMap, err := s.GetUserKnowledgeMap(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(userMap.Conversations) != 0 {
		t.Fatalf("expected the deleted conversation to drop out of alice's own map, got %d", len(userMap.Conversations))
	}
}

func TestDeleteConversationAnonymizesOwnedInsights(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.GetOrCreateUser(ctx, "alice")
	conv, _ := s.CreateConversation(ctx, "alice")
	in, err := s.SaveInsight(ctx, graphmodel.Insight{ConversationID: conv.ID, UserID: "alice", Content: "some insight"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteConversationFromUserGraph(ctx, conv.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	s.mu.RLock()
	got := s.insights[in.ID].UserID
	s.mu.RUnlock()
	if got != graphmodel.AnonymousUserID {
		t.Fatalf("expected insight owner rewritten to %q, got %q", graphmodel.AnonymousUserID, got)
	}
}

func TestDeleteConversationInsightStaysInGlobalPool(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.GetOrCreateUser(ctx, "alice")
	s.GetOrCreateUser(ctx, "bob")
	conv, _ := s.CreateConversation(ctx, "alice")
	in, err := s.SaveInsight(ctx, graphmodel.Insight{ConversationID: conv.ID, UserID: "alice", Content: "some insight"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteConversationFromUserGraph(ctx, conv.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	global, err := s.GetGlobalInsights(ctx, "bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, gi := range global {
		if gi.ID == in.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected anonymized insight %q to remain visible in the global pool, got %+v", in.ID, global)
	}
}

func TestDeleteConversationForbidsNonOwner(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.GetOrCreateUser(ctx, "alice")
	conv, _ := s.CreateConversation(ctx, "alice")

	err := s.DeleteConversationFromUserGraph(ctx, conv.ID, "mallory")
	if err != store.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// TestTwoUsersSameTopicGlobalFrequency mirrors the two-users-same-topic
// scenario: each user's own map shows frequency 1 for the shared topic, the
// global map shows frequency 2.
func TestTwoUsersSameTopicGlobalFrequency(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, user := range []string{"alice", "bob"} {
		s.GetOrCreateUser(ctx, user)
		conv, err := s.CreateConversation(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		err = s.PromoteConversation(ctx, store.Promotion{
			ConversationID:   conv.ID,
			UserID:           user,
			Summary:          "talked about go concurrency",
			Topics:           []string{"concurrency"},
			Insights:         []string{"channels compose well with select"},
			ConsentGlobal:    true,
			UsefulnessReason: "reusable pattern",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	aliceMap, err := s.GetUserKnowledgeMap(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliceMap.Nodes) != 1 || aliceMap.Nodes[0].Frequency != 1 {
		t.Fatalf("expected alice's own map to show frequency 1, got %+v", aliceMap.Nodes)
	}

	global, err := s.GetGlobalKnowledgeMap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(global.Nodes) != 1 || global.Nodes[0].Frequency != 2 {
		t.Fatalf("expected global map to show frequency 2, got %+v", global.Nodes)
	}
	if global.Nodes[0].NormalizedFrequency != 1 {
		t.Fatalf("the single node at max frequency must normalize to 1, got %v", global.Nodes[0].NormalizedFrequency)
	}
}

// TestKnowledgeMapHasNoDanglingEdges asserts every edge's endpoints are
// present among the map's own node set.
func TestKnowledgeMapHasNoDanglingEdges(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.GetOrCreateUser(ctx, "alice")
	conv, _ := s.CreateConversation(ctx, "alice")

	err := s.PromoteConversation(ctx, store.Promotion{
		ConversationID:   conv.ID,
		UserID:           "alice",
		Topics:           []string{"tls", "certificates", "pinning"},
		Insights:         []string{"pin the leaf, not the root"},
		UsefulnessReason: "useful",
	})
	if err != nil {
		t.Fatal(err)
	}

	// A second, unrelated user's topic must never leak into alice's edge set.
	s.GetOrCreateUser(ctx, "bob")
	bobConv, _ := s.CreateConversation(ctx, "bob")
	if err := s.PromoteConversation(ctx, store.Promotion{
		ConversationID:   bobConv.ID,
		UserID:           "bob",
		Topics:           []string{"baking"},
		Insights:         []string{"proof dough at room temperature"},
		UsefulnessReason: "useful",
	}); err != nil {
		t.Fatal(err)
	}

	km, err := s.GetUserKnowledgeMap(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	nodeIDs := make(map[string]bool, len(km.Nodes))
	for _, n := range km.Nodes {
		nodeIDs[n.TopicID] = true
	}
	for _, e := range km.Edges {
		if !nodeIDs[e.Source] || !nodeIDs[e.Target] {
			t.Fatalf("dangling edge %+v: endpoints not in node set %v", e, nodeIDs)
		}
	}
	for _, n := range km.Nodes {
		if n.NormalizedFrequency < 0 || n.NormalizedFrequency > 1 {
			t.Fatalf("normalizedFrequency out of [0,1]: %+v", n)
		}
	}
	if len(km.Edges) != 3 {
		t.Fatalf("expected 3 edges among 3 mutually-linked topics, got %d", len(km.Edges))
	}
}
