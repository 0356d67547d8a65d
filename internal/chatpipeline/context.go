package chatpipeline

import (
	"context"
	"fmt"
	"strings"

	"convograph/internal/graphmodel"
	"convograph/internal/observability"
	"convograph/internal/vectorindex"
)

const (
	maxPersonalInsights  = 15
	maxGlobalSummaries   = 15
	maxGlobalInsights    = 15
	maxTopicLinkInsights = 3
	maxVectorHits        = 3
)

// assembledContext holds every source the prompt preamble is built from,
// plus the personal-insight evidence echoed back in the response.
type assembledContext struct {
	personalInsights []graphmodel.Insight
	globalSummaries  []graphmodel.Conversation
	globalInsights   []graphmodel.Insight
	topicInsights    []graphmodel.Insight
	vectorHits       []vectorindex.SearchResult
}

// assembleContext fetches the four context sources concurrently via a
// bounded fan-out over buffered channels, with the topic-linked fallback
// run after the personal pool is known since it only applies when that
// pool is empty.
func (p *Pipeline) assembleContext(ctx context.Context, userID, queryText string) assembledContext {
	log := observability.LoggerWithTrace(ctx)

	type personalOut struct {
		insights []graphmodel.Insight
	}
	type globalSummariesOut struct {
		conversations []graphmodel.Conversation
	}
	type globalInsightsOut struct {
		insights []graphmodel.Insight
	}
	type vectorOut struct {
		hits []vectorindex.SearchResult
	}

	personalCh := make(chan personalOut, 1)
	summariesCh := make(chan globalSummariesOut, 1)
	globalInsightsCh := make(chan globalInsightsOut, 1)
	vectorCh := make(chan vectorOut, 1)

	go func() {
		insights, err := p.store.GetRecentUserInsights(ctx, userID, maxPersonalInsights)
		if err != nil {
			log.Warn().Err(err).Msg("personal_insights_degraded")
		}
		personalCh <- personalOut{insights: insights}
	}()

	go func() {
		summaries, err := p.store.GetGlobalConversationSummaries(ctx, userID, maxGlobalSummaries)
		if err != nil {
			log.Warn().Err(err).Msg("global_summaries_degraded")
		}
		summariesCh <- globalSummariesOut{conversations: summaries}
	}()

	go func() {
		insights, err := p.store.GetGlobalInsights(ctx, userID, maxGlobalInsights)
		if err != nil {
			log.Warn().Err(err).Msg("global_insights_degraded")
		}
		globalInsightsCh <- globalInsightsOut{insights: insights}
	}()

	go func() {
		if p.vector == nil || strings.TrimSpace(queryText) == "" {
			vectorCh <- vectorOut{}
			return
		}
		vectorCh <- vectorOut{hits: p.vector.SafeSearch(ctx, queryText, userID, maxVectorHits)}
	}()

	out := assembledContext{
		personalInsights: (<-personalCh).insights,
		globalSummaries:  (<-summariesCh).conversations,
		globalInsights:   (<-globalInsightsCh).insights,
		vectorHits:       (<-vectorCh).hits,
	}

	if len(out.personalInsights) == 0 {
		topics, err := p.store.GetAllUserTopics(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Msg("user_topics_degraded")
		} else if len(topics) > 0 {
			topicIDs := make([]string, len(topics))
			for i, t := range topics {
				topicIDs[i] = t.ID
			}
			related, err := p.store.GetRelatedInsights(ctx, userID, topicIDs, maxTopicLinkInsights)
			if err != nil {
				log.Warn().Err(err).Msg("topic_linked_insights_degraded")
			} else {
				out.topicInsights = related
			}
		}
	}

	return out
}

// renderPreamble concatenates the non-empty sections into a single prompt
// preamble, personal insights first, then global knowledge, topic-linked
// fallback, and semantic recall last.
func (c assembledContext) renderPreamble() string {
	var sb strings.Builder

	if len(c.personalInsights) > 0 {
		sb.WriteString("What you know about this user from past conversations:\n")
		for _, in := range c.personalInsights {
			fmt.Fprintf(&sb, "- %s (topics: %s)\n", in.Content, strings.Join(in.Topics, ", "))
		}
		sb.WriteString("\n")
	}

	if len(c.globalSummaries) > 0 || len(c.globalInsights) > 0 {
		sb.WriteString("Relevant knowledge from the community:\n")
		for _, conv := range c.globalSummaries {
			if conv.Summary != "" {
				fmt.Fprintf(&sb, "- summary: %s\n", conv.Summary)
			}
		}
		for _, in := range c.globalInsights {
			fmt.Fprintf(&sb, "- insight: %s\n", in.Content)
		}
		sb.WriteString("\n")
	}

	if len(c.topicInsights) > 0 {
		sb.WriteString("Related to topics you've explored before:\n")
		for _, in := range c.topicInsights {
			fmt.Fprintf(&sb, "- %s\n", in.Content)
		}
		sb.WriteString("\n")
	}

	if len(c.vectorHits) > 0 {
		sb.WriteString("Semantically related past discussion:\n")
		for _, hit := range c.vectorHits {
			fmt.Fprintf(&sb, "- %s (score %.2f)\n", hit.Content, hit.Score)
		}
	}

	return strings.TrimSpace(sb.String())
}

// relatedContext projects the personal-insight evidence grounding the
// answer into the response's relatedContext[] field.
func (c assembledContext) relatedContext() []RelatedContextItem {
	items := make([]RelatedContextItem, 0, len(c.personalInsights))
	for _, in := range c.personalInsights {
		topic := ""
		if len(in.Topics) > 0 {
			topic = in.Topics[0]
		}
		items = append(items, RelatedContextItem{Topic: topic, Score: in.ImportanceScore})
	}
	return items
}

// suggestedTopics surfaces the distinct topics already touched by the
// grounding evidence, for the UI to render as quick links.
func (c assembledContext) suggestedTopics() []string {
	seen := make(map[string]bool)
	var topics []string
	add := func(ts []string) {
		for _, t := range ts {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			topics = append(topics, t)
		}
	}
	for _, in := range c.personalInsights {
		add(in.Topics)
	}
	for _, in := range c.topicInsights {
		add(in.Topics)
	}
	for _, hit := range c.vectorHits {
		add(hit.Topics)
	}
	return topics
}
