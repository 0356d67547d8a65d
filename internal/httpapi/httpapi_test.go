package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"convograph/internal/chatpipeline"
	"convograph/internal/llm"
	"convograph/internal/processor"
	"convograph/internal/store/memstore"
)

type fakeAdapter struct {
	classification llm.QueryClassification
	chatResponse   string
	analysis       llm.ConversationAnalysis
}

func (f *fakeAdapter) Chat(context.Context, string, []llm.Message, llm.ResponseLength) (string, error) {
	return f.chatResponse, nil
}
func (f *fakeAdapter) ChatStream(context.Context, string, []llm.Message, llm.ResponseLength, llm.StreamHandler) error {
	return nil
}
func (f *fakeAdapter) ClassifyQuery(context.Context, string) (llm.QueryClassification, error) {
	return f.classification, nil
}
func (f *fakeAdapter) DetectPII(context.Context, string, string) (llm.PIIResult, error) {
	return llm.PIIResult{}, nil
}
func (f *fakeAdapter) AnalyzeConversation(context.Context, []llm.Message) (llm.ConversationAnalysis, error) {
	return f.analysis, nil
}

var _ llm.Adapter = (*fakeAdapter)(nil)

func newTestServer() *Server {
	s := memstore.New()
	adapter := &fakeAdapter{
		classification: llm.QueryClassification{IsTrivial: true, SuggestedResponseLength: llm.ResponseLengthShort},
		chatResponse:   "Hi there!",
	}
	pipeline := chatpipeline.New(s, adapter, nil)
	proc := processor.New(s, adapter, 0, 10, nil)
	return NewServer(pipeline, proc, s, nil)
}

func TestHandleChatSendGreeting(t *testing.T) {
	server := newTestServer()
	body, _ := json.Marshal(sendRequestBody{UserID: "alice", Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp chatpipeline.SendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "Hi there!" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ConversationID == "" {
		t.Fatalf("expected a conversation id to be assigned")
	}
}

func TestHandleProcessorRunOnEmptyStoreReturnsZeroShape(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/processor/run", nil)
	rec := httptest.NewRecorder()

	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result processor.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Processed != 0 || result.Useful != 0 || result.NotUseful != 0 || len(result.Results) != 0 {
		t.Fatalf("expected {processed:0,useful:0,notUseful:0,results:[]}, got %+v", result)
	}
}

func TestHandleChatDeleteNonOwnerReturns404(t *testing.T) {
	server := newTestServer()
	sendBody, _ := json.Marshal(sendRequestBody{UserID: "alice", Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	sendReq := httptest.NewRequest(http.MethodPost, "/api/chat/send", bytes.NewReader(sendBody))
	sendRec := httptest.NewRecorder()
	server.ServeHTTP(sendRec, sendReq)
	var sendResp chatpipeline.SendResponse
	json.Unmarshal(sendRec.Body.Bytes(), &sendResp)

	delBody, _ := json.Marshal(deleteConversationBody{UserID: "mallory"})
	delReq := httptest.NewRequest(http.MethodDelete, "/api/chat/"+sendResp.ConversationID, bytes.NewReader(delBody))
	delRec := httptest.NewRecorder()
	server.ServeHTTP(delRec, delReq)

	if delRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a non-owner delete, got %d: %s", delRec.Code, delRec.Body.String())
	}
}

func TestHandleKnowledgeAddDoesNotLeaveConversationIdle(t *testing.T) {
	s := memstore.New()
	adapter := &fakeAdapter{analysis: llm.ConversationAnalysis{IsUseful: true, Summary: "should never run"}}
	pipeline := chatpipeline.New(s, adapter, nil)
	proc := processor.New(s, adapter, 0, 10, nil)
	server := NewServer(pipeline, proc, s, nil)

	body, _ := json.Marshal(knowledgeAddBody{Content: "Go channels are typed conduits", UserID: "alice", Topics: []string{"go"}})
	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/add", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	result, err := proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 0 {
		t.Fatalf("expected the ingested conversation to already be stamped processed, but the processor picked up %d conversation(s)", result.Processed)
	}
}

func TestHandleSuggestionsResolvesTopicNamesToIDs(t *testing.T) {
	server := newTestServer()
	ctx := context.Background()
	docker, err := server.store.GetOrCreateTopic(ctx, "docker")
	if err != nil {
		t.Fatal(err)
	}
	kubernetes, err := server.store.GetOrCreateTopic(ctx, "kubernetes")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := server.store.LinkTopics(ctx, docker.ID, kubernetes.ID, 0.8); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/graph/suggestions?topics=docker", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Topics []struct {
			ID string `json:"id"`
		} `json:"topics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Topics) != 1 || resp.Topics[0].ID != kubernetes.ID {
		t.Fatalf("expected [kubernetes] suggested from a docker relation, got %+v", resp.Topics)
	}
}

func TestHandleKnowledgeAddPropagatesConsentGlobalToPromotion(t *testing.T) {
	server := newTestServer()
	ctx := context.Background()
	if _, err := server.store.GetOrCreateUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := server.store.SetConsentGlobal(ctx, "alice", true); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(knowledgeAddBody{Content: "Go channels are typed conduits", UserID: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/add", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	km, err := server.store.GetGlobalKnowledgeMap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, gi := range km.GlobalInsights {
		if gi.Content == "Go channels are typed conduits" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a consenting user's ingested insight to be promoted to the global pool, got %+v", km.GlobalInsights)
	}
}

func TestHandlePing(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
