// Package briefing composes spoken briefings from the latest widget
// data snapshots using the OpenAI chat API.
package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Sentiment keywords the composer may return. Anything else is mapped
// to neutral before it reaches the avatar.
const (
	SentimentHappy   = "happy"
	SentimentSerious = "serious"
	SentimentAlert   = "alert"
	SentimentNeutral = "neutral"
)

const systemPrompt = `You are the voice of a desktop avatar assistant.
Summarize the given widget data as a short spoken briefing, two or three
sentences, conversational and direct. Reply with a JSON object:
{"text": "<the briefing>", "sentiment": "happy|serious|alert|neutral"}.
Pick the sentiment that matches the overall tone of the data.`

// Briefing is a composed utterance plus the tone it should be
// delivered with.
type Briefing struct {
	Text      string `json:"text"`
	Sentiment string `json:"sentiment"`
}

// SnapshotSource hands out the latest data record per widget source.
// The reaction table satisfies this.
type SnapshotSource interface {
	Snapshot(source string) (map[string]any, bool)
	Sources() []string
}

// chatService is the minimal chat surface, extracted for mocking.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type openaiChat struct {
	svc openai.ChatCompletionService
}

func (c openaiChat) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.svc.New(ctx, params)
}

// Composer builds briefings over a chat model.
type Composer struct {
	chat   chatService
	model  openai.ChatModel
	logger *slog.Logger
}

// NewComposer creates a composer talking to the OpenAI API.
func NewComposer(apiKey string, logger *slog.Logger) (*Composer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("briefing: API key required")
	}
	if logger == nil {
		logger = slog.Default().With("component", "briefing")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Composer{
		chat:   openaiChat{svc: client.Chat.Completions},
		model:  openai.ChatModelGPT4oMini,
		logger: logger,
	}, nil
}

// Compose builds the full briefing over every known widget snapshot.
func (c *Composer) Compose(ctx context.Context, snaps SnapshotSource) (*Briefing, error) {
	sources := snaps.Sources()
	sort.Strings(sources)
	return c.compose(ctx, sources, snaps)
}

// ComposeWidget builds a briefing for a single widget source.
func (c *Composer) ComposeWidget(ctx context.Context, source string, snaps SnapshotSource) (*Briefing, error) {
	return c.compose(ctx, []string{source}, snaps)
}

func (c *Composer) compose(ctx context.Context, sources []string, snaps SnapshotSource) (*Briefing, error) {
	data := map[string]map[string]any{}
	for _, s := range sources {
		if snap, ok := snaps.Snapshot(s); ok {
			data[s] = snap
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("briefing: no widget data for %v", sources)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("briefing: encode snapshots: %w", err)
	}

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("briefing: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("briefing: no choices returned")
	}

	b := parseReply(resp.Choices[0].Message.Content)
	c.logger.Info("briefing composed",
		"sources", len(data),
		"sentiment", b.Sentiment,
		"chars", len(b.Text),
	)
	return b, nil
}

// parseReply reads the model's JSON reply. A reply that is not valid
// JSON is used verbatim as the briefing text with neutral tone.
func parseReply(content string) *Briefing {
	content = strings.TrimSpace(content)

	// Models occasionally fence their JSON despite instructions.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var b Briefing
	if err := json.Unmarshal([]byte(content), &b); err != nil || b.Text == "" {
		return &Briefing{Text: content, Sentiment: SentimentNeutral}
	}

	switch b.Sentiment {
	case SentimentHappy, SentimentSerious, SentimentAlert:
	default:
		b.Sentiment = SentimentNeutral
	}
	return &b
}
