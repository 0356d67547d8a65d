package chatpipeline

import (
	"context"
	"fmt"
	"strings"

	"convograph/internal/graphmodel"
	"convograph/internal/observability"
)

// chunkCollector adapts FrameWriter to llm.StreamHandler, accumulating the
// full response while forwarding each delta as a text frame.
type chunkCollector struct {
	ctx            context.Context
	writer         FrameWriter
	conversationID string
	builder        strings.Builder
	writeErr       error
}

func (c *chunkCollector) OnDelta(text string) {
	if text == "" || c.writeErr != nil {
		return
	}
	c.builder.WriteString(text)
	if err := c.writer.WriteFrame(StreamFrame{Text: text, ConversationID: c.conversationID}); err != nil {
		c.writeErr = err
	}
}

// Stream runs one streamed chat turn, backing POST /api/chat/stream. The
// user message is persisted before the first frame is forwarded; a
// mid-stream failure emits an error frame and discards the partial
// assistant content, leaving the user message as the only persisted write.
func (p *Pipeline) Stream(ctx context.Context, req SendRequest, writer FrameWriter) error {
	if req.UserID == "" {
		return writer.WriteFrame(StreamFrame{Error: "userId is required"})
	}
	if len(req.Messages) == 0 {
		return writer.WriteFrame(StreamFrame{Error: "messages must not be empty"})
	}

	if _, err := p.store.GetOrCreateUser(ctx, req.UserID); err != nil {
		return writer.WriteFrame(StreamFrame{Error: fmt.Sprintf("get or create user: %v", err)})
	}

	conversationID, err := p.resolveConversation(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return writer.WriteFrame(StreamFrame{Error: err.Error()})
	}

	userTurn := req.Messages[len(req.Messages)-1]

	classification, err := p.llm.ClassifyQuery(ctx, userTurn.Content)
	if err != nil {
		return writer.WriteFrame(StreamFrame{Error: fmt.Sprintf("classify query: %v", err), ConversationID: conversationID})
	}

	assembled := p.assembleContext(ctx, req.UserID, userTurn.Content)
	preamble := assembled.renderPreamble()

	if _, err := p.store.AddMessage(ctx, conversationID, graphmodel.RoleUser, userTurn.Content); err != nil {
		return writer.WriteFrame(StreamFrame{Error: fmt.Sprintf("persist user message: %v", err), ConversationID: conversationID})
	}

	collector := &chunkCollector{ctx: ctx, writer: writer, conversationID: conversationID}
	streamErr := p.llm.ChatStream(ctx, preamble, req.Messages, classification.SuggestedResponseLength, collector)

	if streamErr != nil || collector.writeErr != nil {
		observability.LoggerWithTrace(ctx).Error().Err(streamErr).Str("conversationId", conversationID).Msg("chat_stream_failed")
		return writer.WriteFrame(StreamFrame{Error: "stream failed", ConversationID: conversationID})
	}

	response := collector.builder.String()
	if _, err := p.store.AddMessage(ctx, conversationID, graphmodel.RoleAssistant, response); err != nil {
		return writer.WriteFrame(StreamFrame{Error: fmt.Sprintf("persist assistant message: %v", err), ConversationID: conversationID})
	}
	if err := p.store.UpdateConversationActivity(ctx, conversationID); err != nil {
		return writer.WriteFrame(StreamFrame{Error: fmt.Sprintf("update conversation activity: %v", err), ConversationID: conversationID})
	}

	if _, _, err := p.runPIIGate(ctx, conversationID, userTurn.Content, response, classification.IsTrivial, req.GlobalSharingConsent); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("conversationId", conversationID).Msg("pii_gate_error")
	}

	return writer.WriteFrame(StreamFrame{Done: true, ConversationID: conversationID})
}
