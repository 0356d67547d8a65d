// Package processor implements the deferred conversation processor:
// it finds idle conversations, asks the LLM adapter to analyse each, and
// promotes useful ones into the personal and global graph under the
// consent/PII gate already enforced upstream by the chat pipeline.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"convograph/internal/graphmodel"
	"convograph/internal/llm"
	"convograph/internal/observability"
	"convograph/internal/store"
)

// ConversationResult summarizes one conversation's processing outcome.
type ConversationResult struct {
	ConversationID string `json:"conversationId"`
	IsUseful       bool   `json:"isUseful"`
	Reason         string `json:"reason"`
	TopicCount     int    `json:"topicCount"`
	InsightCount   int    `json:"insightCount"`
}

// Result is the outcome of one processor run; an empty run returns
// {processed:0,useful:0,notUseful:0,results:[]}.
type Result struct {
	Processed int                   `json:"processed"`
	Useful    int                   `json:"useful"`
	NotUseful int                   `json:"notUseful"`
	Results   []ConversationResult  `json:"results"`
}

// Processor runs the idle-selection and per-conversation work.
type Processor struct {
	store         store.GraphStore
	llm           llm.Adapter
	idleThreshold time.Duration
	batchSize     int
	lock          runLock
	group         singleflight.Group
}

// New constructs a Processor. lock may be nil, in which case a local
// in-process lock is used (single-instance deployments, tests).
func New(graphStore store.GraphStore, llmAdapter llm.Adapter, idleThreshold time.Duration, batchSize int, lock runLock) *Processor {
	if lock == nil {
		lock = newLocalLock()
	}
	return &Processor{store: graphStore, llm: llmAdapter, idleThreshold: idleThreshold, batchSize: batchSize, lock: lock}
}

// NewWithRedisLock constructs a Processor whose cross-instance backpressure
// is enforced by a Redis SETNX-with-TTL key rather than the
// single-instance default. redisClient may be nil, in which case this is
// equivalent to New(..., nil).
func NewWithRedisLock(graphStore store.GraphStore, llmAdapter llm.Adapter, idleThreshold time.Duration, batchSize int, redisClient *redis.Client, lockKey string, lockTTL time.Duration) *Processor {
	var lock runLock
	if redisClient != nil {
		lock = newRedisLock(redisClient, lockKey, lockTTL)
	}
	return New(graphStore, llmAdapter, idleThreshold, batchSize, lock)
}

// runGroupKey is a constant singleflight key: the processor has exactly one
// named lock, so every caller coalesces onto the same in-flight call.
const runGroupKey = "processor-run"

// Run executes one processor pass, or joins an already in-flight one.
// Coalescing concurrent callers onto the same Do call is how a single
// instance satisfies its backpressure rule; ErrRunInProgress is how a
// second instance holding the distributed lock signals the same thing.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	v, err, _ := p.group.Do(runGroupKey, func() (any, error) {
		return p.runLocked(ctx)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (p *Processor) runLocked(ctx context.Context) (Result, error) {
	release, ok, err := p.lock.tryAcquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquire processor lock: %w", err)
	}
	if !ok {
		return Result{}, ErrRunInProgress
	}
	defer release()
	return p.runOnce(ctx)
}

func (p *Processor) runOnce(ctx context.Context) (Result, error) {
	log := observability.LoggerWithTrace(ctx)

	conversations, err := p.store.ListIdleConversations(ctx, int64(p.idleThreshold.Seconds()), p.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("list idle conversations: %w", err)
	}

	result := Result{Results: make([]ConversationResult, 0, len(conversations))}
	for _, conv := range conversations {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		cr, err := p.processConversation(ctx, conv)
		if err != nil {
			log.Error().Err(err).Str("conversationId", conv.ID).Msg("processor_conversation_error")
			continue
		}
		result.Processed++
		if cr.IsUseful {
			result.Useful++
		} else {
			result.NotUseful++
		}
		result.Results = append(result.Results, cr)
	}
	return result, nil
}

func (p *Processor) processConversation(ctx context.Context, conv graphmodel.Conversation) (ConversationResult, error) {
	messages, err := p.store.GetMessages(ctx, conv.ID)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("get messages: %w", err)
	}

	if len(messages) == 0 {
		const reason = "No messages"
		if err := p.store.MarkConversationNotUseful(ctx, conv.ID, reason); err != nil {
			return ConversationResult{}, fmt.Errorf("mark not useful: %w", err)
		}
		return ConversationResult{ConversationID: conv.ID, IsUseful: false, Reason: reason}, nil
	}

	llmMessages := make([]llm.Message, len(messages))
	for i, m := range messages {
		llmMessages[i] = llm.Message{Role: string(m.Role), Content: m.Content}
	}

	analysis, err := p.llm.AnalyzeConversation(ctx, llmMessages)
	if err != nil {
		// Analysis itself should never error (the adapter swallows its own
		// failures), but treat it the same as a useful-branch failure:
		// stamp processed to avoid a retry storm on persistently bad data.
		if markErr := p.store.MarkConversationNotUseful(ctx, conv.ID, "Processing error"); markErr != nil {
			return ConversationResult{}, fmt.Errorf("analyze conversation: %w (mark failed: %v)", err, markErr)
		}
		return ConversationResult{ConversationID: conv.ID, IsUseful: false, Reason: "Processing error"}, nil
	}

	if !analysis.IsUseful {
		if err := p.store.MarkConversationNotUseful(ctx, conv.ID, analysis.Reason); err != nil {
			return ConversationResult{}, fmt.Errorf("mark not useful: %w", err)
		}
		return ConversationResult{ConversationID: conv.ID, IsUseful: false, Reason: analysis.Reason}, nil
	}

	user, err := p.store.GetOrCreateUser(ctx, conv.UserID)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("get owning user: %w", err)
	}

	promotion := store.Promotion{
		ConversationID:   conv.ID,
		UserID:           conv.UserID,
		Summary:          analysis.Summary,
		Topics:           analysis.Topics,
		Insights:         analysis.Insights,
		ConsentGlobal:    user.ConsentGlobal,
		UsefulnessReason: analysis.Reason,
	}

	// Any failure inside the useful-branch transaction stamps the row
	// processed with "Processing error" rather than retrying it — a
	// deliberate choice to avoid a retry storm on persistently bad data.
	if err := p.store.PromoteConversation(ctx, promotion); err != nil {
		if markErr := p.store.MarkConversationNotUseful(ctx, conv.ID, "Processing error"); markErr != nil {
			return ConversationResult{}, fmt.Errorf("promote conversation: %w (mark failed: %v)", err, markErr)
		}
		return ConversationResult{ConversationID: conv.ID, IsUseful: false, Reason: "Processing error"}, nil
	}

	return ConversationResult{
		ConversationID: conv.ID,
		IsUseful:       true,
		Reason:         analysis.Reason,
		TopicCount:     len(promotion.Topics),
		InsightCount:   len(promotion.Insights),
	}, nil
}
