package llm

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"convograph/internal/observability"
)

// chatPersona is the fixed persona prefixed to every chat completion's
// system prompt, followed by a labeled context block when one is present.
const chatPersona = `You are a helpful assistant with access to the user's prior conversation history and knowledge graph. Answer directly and naturally; do not mention that you have this context unless the user asks about it.`

// Anthropic is the Adapter implementation backed by the Messages API. It is
// the sole backing provider: the API has no JSON-object response
// mode, which is why every structured operation below parses its answer
// through extractJSON rather than assuming a clean payload.
type Anthropic struct {
	sdk   anthropicsdk.Client
	model string
}

// NewAnthropic constructs a client for the given API key and default model.
func NewAnthropic(apiKey, model string) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if model == "" {
		model = string(anthropicsdk.ModelClaude3_7SonnetLatest)
	}
	return &Anthropic{sdk: anthropicsdk.NewClient(opts...), model: model}
}

func toParams(history []Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(history))
	for _, m := range history {
		block := anthropicsdk.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			out = append(out, anthropicsdk.NewAssistantMessage(block))
		default:
			out = append(out, anthropicsdk.NewUserMessage(block))
		}
	}
	return out
}

func (a *Anthropic) complete(ctx context.Context, system string, history []Message, maxTokens int, temperature float64) (string, error) {
	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(a.model),
		Messages:    toParams(history),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropicsdk.Float(temperature),
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	log := observability.LoggerWithTrace(ctx)
	resp, err := a.sdk.Messages.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", a.model).Msg("anthropic_complete_error")
		return "", fmt.Errorf("anthropic completion: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}

// Chat assembles the fixed persona with an optional labeled context block
// (system) and runs the completion at the length's token ceiling.
func (a *Anthropic) Chat(ctx context.Context, system string, history []Message, length ResponseLength) (string, error) {
	return a.complete(ctx, composeSystemPrompt(system), history, ChatMaxTokens(length), chatTemperature)
}

func composeSystemPrompt(context string) string {
	if strings.TrimSpace(context) == "" {
		return chatPersona
	}
	return chatPersona + "\n\nContext:\n" + context
}

func (a *Anthropic) ChatStream(ctx context.Context, system string, history []Message, length ResponseLength, h StreamHandler) error {
	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(a.model),
		Messages:    toParams(history),
		MaxTokens:   int64(ChatMaxTokens(length)),
		Temperature: anthropicsdk.Float(chatTemperature),
		System:      []anthropicsdk.TextBlockParam{{Text: composeSystemPrompt(system)}},
	}
	log := observability.LoggerWithTrace(ctx)
	stream := a.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var acc anthropicsdk.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			log.Debug().Err(err).Msg("anthropic_stream_accumulate_error")
		}
		if delta, ok := event.AsAny().(anthropicsdk.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropicsdk.TextDelta); ok && text.Text != "" && h != nil {
				h.OnDelta(text.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		log.Error().Err(err).Str("model", a.model).Msg("anthropic_stream_error")
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}

const classifySystemPrompt = `Classify the user's message. Respond with only a JSON object: {"isTrivial": true|false, "suggestedResponseLength": "short"|"medium"|"long"}. isTrivial means a greeting or simple acknowledgement needing no elaboration.`

// ClassifyQuery parses the model's verdict; any network or parse failure
// returns the documented neutral default {false, medium}.
func (a *Anthropic) ClassifyQuery(ctx context.Context, query string) (QueryClassification, error) {
	neutral := QueryClassification{IsTrivial: false, SuggestedResponseLength: ResponseLengthMedium}
	raw, err := a.complete(ctx, classifySystemPrompt, []Message{{Role: "user", Content: query}}, classifyMaxTokens, classifyTemperature)
	if err != nil {
		return neutral, nil
	}
	var parsed struct {
		IsTrivial               bool   `json:"isTrivial"`
		SuggestedResponseLength string `json:"suggestedResponseLength"`
	}
	if !decodeJSONLoose(raw, &parsed) {
		return neutral, nil
	}
	length := ResponseLength(parsed.SuggestedResponseLength)
	switch length {
	case ResponseLengthShort, ResponseLengthMedium, ResponseLengthLong:
	default:
		length = ResponseLengthMedium
	}
	return QueryClassification{IsTrivial: parsed.IsTrivial, SuggestedResponseLength: length}, nil
}

const piiSystemPromptTemplate = `Examine this exchange for personally identifiable information in these categories: names, emails, phone numbers, addresses, government IDs, medical information, financial information, dates of birth, account numbers. Respond with only a JSON object: {"containsPII": true|false, "piiTypes": ["..."], "explanation": "one short sentence"}.

User: %s
Assistant: %s`

// DetectPII treats a network or parse failure as containsPII=false, its
// documented neutral default — the caller additionally gates on the user's
// explicit consent before sharing, so a false negative here is not the only
// safeguard against a PII leak into the global pool.
func (a *Anthropic) DetectPII(ctx context.Context, userQuery, assistantResponse string) (PIIResult, error) {
	neutral := PIIResult{ContainsPII: false}
	prompt := fmt.Sprintf(piiSystemPromptTemplate, userQuery, assistantResponse)
	raw, err := a.complete(ctx, "", []Message{{Role: "user", Content: prompt}}, piiMaxTokens, piiTemperature)
	if err != nil {
		return neutral, nil
	}
	var parsed struct {
		ContainsPII bool     `json:"containsPII"`
		PIITypes    []string `json:"piiTypes"`
		Explanation string   `json:"explanation"`
	}
	if !decodeJSONLoose(raw, &parsed) {
		return neutral, nil
	}
	return PIIResult{ContainsPII: parsed.ContainsPII, PIITypes: parsed.PIITypes, Explanation: parsed.Explanation}, nil
}

const analyzeSystemPrompt = `Analyze this conversation and decide whether it contains useful, reusable knowledge. Respond with only a JSON object:
{"isUseful": true|false, "reason": "one short sentence", "summary": "one paragraph, empty if not useful", "topics": ["up to 6 short topic names"], "insights": ["up to 4 concrete standalone takeaways"], "relatedTopics": ["topics this touches but does not center on"]}`

// AnalyzeConversation never propagates a parse/network failure: on a
// network or parse failure the conversation is treated as not useful so the
// processor stamps and moves on. A successfully parsed response is
// post-validated: topics and insights are truncated and isComplete is set
// to true.
func (a *Anthropic) AnalyzeConversation(ctx context.Context, messages []Message) (ConversationAnalysis, error) {
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}
	raw, err := a.complete(ctx, analyzeSystemPrompt, []Message{{Role: "user", Content: transcript.String()}}, analyzeMaxTokens, analyzeTemperature)
	if err != nil {
		return ConversationAnalysis{IsUseful: false, Reason: "analysis unavailable", IsComplete: true}, nil
	}
	var parsed struct {
		IsUseful      bool     `json:"isUseful"`
		Reason        string   `json:"reason"`
		Summary       string   `json:"summary"`
		Topics        []string `json:"topics"`
		Insights      []string `json:"insights"`
		RelatedTopics []string `json:"relatedTopics"`
	}
	if !decodeJSONLoose(raw, &parsed) {
		return ConversationAnalysis{IsUseful: false, Reason: "analysis unparsable", IsComplete: true}, nil
	}
	if len(parsed.Topics) > maxAnalysisTopics {
		parsed.Topics = parsed.Topics[:maxAnalysisTopics]
	}
	if len(parsed.Insights) > maxAnalysisInsights {
		parsed.Insights = parsed.Insights[:maxAnalysisInsights]
	}
	return ConversationAnalysis{
		IsUseful:      parsed.IsUseful,
		Reason:        parsed.Reason,
		Summary:       parsed.Summary,
		Topics:        parsed.Topics,
		Insights:      parsed.Insights,
		RelatedTopics: parsed.RelatedTopics,
		IsComplete:    true,
	}, nil
}

var _ Adapter = (*Anthropic)(nil)
