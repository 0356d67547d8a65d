package memstore

import (
	"sort"

	"convograph/internal/graphmodel"
)

func sortConversationsByUpdatedDesc(cs []graphmodel.Conversation) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].UpdatedAt.After(cs[j].UpdatedAt) })
}

func sortConversationsByUpdatedAsc(cs []graphmodel.Conversation) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].UpdatedAt.Before(cs[j].UpdatedAt) })
}

func sortInsightsByCreatedDesc(ins []graphmodel.Insight) {
	sort.Slice(ins, func(i, j int) bool { return ins[i].CreatedAt.After(ins[j].CreatedAt) })
}

func clampConversations(cs []graphmodel.Conversation, limit int) []graphmodel.Conversation {
	if limit > 0 && len(cs) > limit {
		return cs[:limit]
	}
	return cs
}

func clampInsights(ins []graphmodel.Insight, limit int) []graphmodel.Insight {
	if limit > 0 && len(ins) > limit {
		return ins[:limit]
	}
	return ins
}

func clampTopics(ts []graphmodel.Topic, limit int) []graphmodel.Topic {
	if limit > 0 && len(ts) > limit {
		return ts[:limit]
	}
	return ts
}
