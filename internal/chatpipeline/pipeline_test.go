package chatpipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"convograph/internal/llm"
	"convograph/internal/store"
	"convograph/internal/store/memstore"
)

// fakeAdapter is a scriptable llm.Adapter test double.
type fakeAdapter struct {
	classification llm.QueryClassification
	chatResponse   string
	pii            llm.PIIResult
	analysis       llm.ConversationAnalysis
}

func (f *fakeAdapter) Chat(ctx context.Context, system string, history []llm.Message, length llm.ResponseLength) (string, error) {
	return f.chatResponse, nil
}

func (f *fakeAdapter) ChatStream(ctx context.Context, system string, history []llm.Message, length llm.ResponseLength, h llm.StreamHandler) error {
	h.OnDelta(f.chatResponse)
	return nil
}

func (f *fakeAdapter) ClassifyQuery(ctx context.Context, query string) (llm.QueryClassification, error) {
	return f.classification, nil
}

func (f *fakeAdapter) DetectPII(ctx context.Context, userQuery, assistantResponse string) (llm.PIIResult, error) {
	return f.pii, nil
}

func (f *fakeAdapter) AnalyzeConversation(ctx context.Context, messages []llm.Message) (llm.ConversationAnalysis, error) {
	return f.analysis, nil
}

var _ llm.Adapter = (*fakeAdapter)(nil)

func TestSendGreetingHasNoTopicsAndNoPIIDetection(t *testing.T) {
	s := memstore.New()
	adapter := &fakeAdapter{
		classification: llm.QueryClassification{IsTrivial: true, SuggestedResponseLength: llm.ResponseLengthShort},
		chatResponse:   "Hi there! How can I help?",
		pii:            llm.PIIResult{ContainsPII: false},
	}
	p := New(s, adapter, nil)

	resp, err := p.Send(context.Background(), SendRequest{UserID: "alice", Messages: []llm.Message{{Role: "user", Content: "hello"}}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.PIIDetection != nil {
		t.Fatalf("expected no PII detection for a trivial greeting, got %+v", resp.PIIDetection)
	}
	if len(resp.SuggestedTopics) != 0 {
		t.Fatalf("expected no suggested topics for a greeting, got %v", resp.SuggestedTopics)
	}
	if resp.GlobalSharingBlocked {
		t.Fatalf("a clean greeting must not block global sharing")
	}
}

func TestSendWithPIIConsentFalseBlocksGlobalSharing(t *testing.T) {
	s := memstore.New()
	adapter := &fakeAdapter{
		classification: llm.QueryClassification{IsTrivial: false, SuggestedResponseLength: llm.ResponseLengthMedium},
		chatResponse:   "Your account number is 1234-5678.",
		pii:            llm.PIIResult{ContainsPII: true, PIITypes: []string{"financial"}, Explanation: "account number"},
	}
	p := New(s, adapter, nil)
	consent := false

	resp, err := p.Send(context.Background(), SendRequest{
		UserID:               "alice",
		Messages:             []llm.Message{{Role: "user", Content: "what's my account number?"}},
		GlobalSharingConsent: &consent,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.PIIDetection == nil || !resp.PIIDetection.ContainsPII {
		t.Fatalf("expected a PII detection to be reported")
	}
	if !resp.GlobalSharingBlocked {
		t.Fatalf("explicit consent=false with detected PII must block global sharing")
	}

	blocked, err := s.IsConversationGlobalSharingBlocked(context.Background(), resp.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Fatalf("the block must be persisted on the conversation, not just echoed in the response")
	}
}

func TestSendWithPIIConsentOmittedDoesNotBlock(t *testing.T) {
	s := memstore.New()
	adapter := &fakeAdapter{
		classification: llm.QueryClassification{IsTrivial: false, SuggestedResponseLength: llm.ResponseLengthMedium},
		chatResponse:   "Your account number is 1234-5678.",
		pii:            llm.PIIResult{ContainsPII: true, PIITypes: []string{"financial"}},
	}
	p := New(s, adapter, nil)

	resp, err := p.Send(context.Background(), SendRequest{
		UserID:   "alice",
		Messages: []llm.Message{{Role: "user", Content: "what's my account number?"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.PIIDetection == nil {
		t.Fatalf("expected the detection payload to surface for the UI to gather consent")
	}
	if resp.GlobalSharingBlocked {
		t.Fatalf("omitted consent must not itself block global sharing")
	}
}

func TestSendWithPIIConsentTrueDoesNotBlock(t *testing.T) {
	s := memstore.New()
	adapter := &fakeAdapter{
		classification: llm.QueryClassification{IsTrivial: false, SuggestedResponseLength: llm.ResponseLengthMedium},
		chatResponse:   "Your account number is 1234-5678.",
		pii:            llm.PIIResult{ContainsPII: true, PIITypes: []string{"financial"}},
	}
	p := New(s, adapter, nil)
	consent := true

	resp, err := p.Send(context.Background(), SendRequest{
		UserID:               "alice",
		Messages:             []llm.Message{{Role: "user", Content: "what's my account number?"}},
		GlobalSharingConsent: &consent,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GlobalSharingBlocked {
		t.Fatalf("explicit consent=true must not block global sharing even though PII was detected")
	}
}

type recordingWriter struct {
	frames []StreamFrame
}

func (r *recordingWriter) WriteFrame(f StreamFrame) error {
	r.frames = append(r.frames, f)
	return nil
}

func TestStreamProducesSameFinalTextAsBlockingChat(t *testing.T) {
	adapter := &fakeAdapter{
		classification: llm.QueryClassification{IsTrivial: true, SuggestedResponseLength: llm.ResponseLengthShort},
		chatResponse:   "streamed response",
	}

	blockingStore := memstore.New()
	blockingPipeline := New(blockingStore, adapter, nil)
	blockingResp, err := blockingPipeline.Send(context.Background(), SendRequest{UserID: "alice", Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}

	streamStore := memstore.New()
	streamPipeline := New(streamStore, adapter, nil)
	writer := &recordingWriter{}
	if err := streamPipeline.Stream(context.Background(), SendRequest{UserID: "alice", Messages: []llm.Message{{Role: "user", Content: "hi"}}}, writer); err != nil {
		t.Fatal(err)
	}

	var streamedText strings.Builder
	done := false
	for _, f := range writer.frames {
		streamedText.WriteString(f.Text)
		if f.Done {
			done = true
		}
	}
	if !done {
		t.Fatalf("expected a final done frame, got %+v", writer.frames)
	}
	if streamedText.String() != blockingResp.Response {
		t.Fatalf("stream produced %q, blocking chat produced %q", streamedText.String(), blockingResp.Response)
	}
}

func TestSendPersistsBothMessages(t *testing.T) {
	s := memstore.New()
	adapter := &fakeAdapter{
		classification: llm.QueryClassification{IsTrivial: true, SuggestedResponseLength: llm.ResponseLengthShort},
		chatResponse:   "hi",
	}
	p := New(s, adapter, nil)

	resp, err := p.Send(context.Background(), SendRequest{UserID: "alice", Messages: []llm.Message{{Role: "user", Content: "hello"}}})
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := s.GetMessages(context.Background(), resp.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages (user + assistant), got %d", len(msgs))
	}
}

func TestSendIntoAnotherUsersConversationIsForbidden(t *testing.T) {
	s := memstore.New()
	adapter := &fakeAdapter{
		classification: llm.QueryClassification{IsTrivial: true, SuggestedResponseLength: llm.ResponseLengthShort},
		chatResponse:   "hi",
	}
	p := New(s, adapter, nil)

	alice, err := p.Send(context.Background(), SendRequest{UserID: "alice", Messages: []llm.Message{{Role: "user", Content: "hello"}}})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Send(context.Background(), SendRequest{UserID: "mallory", ConversationID: alice.ConversationID, Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a cross-user conversationId, got %v", err)
	}
}
