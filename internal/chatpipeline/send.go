package chatpipeline

import (
	"context"
	"fmt"

	"convograph/internal/graphmodel"
	"convograph/internal/observability"
	"convograph/internal/store"
)

// Send runs one blocking chat turn: assemble context, classify the
// query, complete, persist both messages, bump activity, probe for PII.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (SendResponse, error) {
	if req.UserID == "" {
		return SendResponse{}, fmt.Errorf("userId is required")
	}
	if len(req.Messages) == 0 {
		return SendResponse{}, fmt.Errorf("messages must not be empty")
	}

	if _, err := p.store.GetOrCreateUser(ctx, req.UserID); err != nil {
		return SendResponse{}, fmt.Errorf("get or create user: %w", err)
	}

	conversationID, err := p.resolveConversation(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return SendResponse{}, err
	}

	userTurn := req.Messages[len(req.Messages)-1]

	classification, err := p.llm.ClassifyQuery(ctx, userTurn.Content)
	if err != nil {
		return SendResponse{}, fmt.Errorf("classify query: %w", err)
	}

	assembled := p.assembleContext(ctx, req.UserID, userTurn.Content)
	preamble := assembled.renderPreamble()

	if _, err := p.store.AddMessage(ctx, conversationID, graphmodel.RoleUser, userTurn.Content); err != nil {
		return SendResponse{}, fmt.Errorf("persist user message: %w", err)
	}

	response, err := p.llm.Chat(ctx, preamble, req.Messages, classification.SuggestedResponseLength)
	if err != nil {
		return SendResponse{}, fmt.Errorf("chat completion: %w", err)
	}

	if _, err := p.store.AddMessage(ctx, conversationID, graphmodel.RoleAssistant, response); err != nil {
		return SendResponse{}, fmt.Errorf("persist assistant message: %w", err)
	}
	if err := p.store.UpdateConversationActivity(ctx, conversationID); err != nil {
		return SendResponse{}, fmt.Errorf("update conversation activity: %w", err)
	}

	piiDetection, blocked, err := p.runPIIGate(ctx, conversationID, userTurn.Content, response, classification.IsTrivial, req.GlobalSharingConsent)
	if err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("conversationId", conversationID).Msg("pii_gate_error")
	}

	return SendResponse{
		Response:             response,
		ConversationID:       conversationID,
		RelatedContext:       assembled.relatedContext(),
		SuggestedTopics:      assembled.suggestedTopics(),
		PIIDetection:         piiDetection,
		GlobalSharingBlocked: blocked,
	}, nil
}

func (p *Pipeline) resolveConversation(ctx context.Context, userID, conversationID string) (string, error) {
	if conversationID == "" {
		conv, err := p.store.CreateConversation(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("create conversation: %w", err)
		}
		return conv.ID, nil
	}
	conv, err := p.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("get conversation: %w", err)
	}
	if conv.UserID != userID {
		return "", store.ErrForbidden
	}
	return conversationID, nil
}
