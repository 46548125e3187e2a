// Package openaicompat implements embeddings and generation against the
// OpenAI API or any server that speaks the same protocol.
package openaicompat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ayxsth/cloudymate/internal/logger"
	"github.com/ayxsth/cloudymate/rag"
)

// Options configure a Client. Empty models fall back to the defaults.
type Options struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	EmbeddingModel  string
	ModerationModel string
	Dimensions      int

	Temperature float64
	TopP        float64
	MaxTokens   int

	// MaxRetries caps SDK retries. Zero keeps the SDK default, a negative
	// value disables retries.
	MaxRetries int
}

const (
	DefaultChatModel       = "gpt-4o-mini"
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultModerationModel = "omni-moderation-latest"
)

// Client is both a rag.Embedder and a rag.Generator. When a guardrail is
// requested, the moderation endpoint screens the prompt and the answer.
type Client struct {
	api  openai.Client
	opts Options
}

func New(opts Options) *Client {
	if opts.ChatModel == "" {
		opts.ChatModel = DefaultChatModel
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = DefaultEmbeddingModel
	}
	if opts.ModerationModel == "" {
		opts.ModerationModel = DefaultModerationModel
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	switch {
	case opts.MaxRetries > 0:
		reqOpts = append(reqOpts, option.WithMaxRetries(opts.MaxRetries))
	case opts.MaxRetries < 0:
		reqOpts = append(reqOpts, option.WithMaxRetries(0))
	}

	return &Client{api: openai.NewClient(reqOpts...), opts: opts}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request and returns vectors in input
// order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.opts.EmbeddingModel),
	}
	if c.opts.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.opts.Dimensions))
	}

	resp, err := c.api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			rag.ErrEmbeddingUnavailable, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float64, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", rag.ErrEmbeddingUnavailable, i)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

func (c *Client) Generate(ctx context.Context, prompt string, guard *rag.Guardrail) (rag.Generation, error) {
	if guard != nil {
		flagged, err := c.flagged(ctx, prompt)
		if err != nil {
			return rag.Generation{}, err
		}
		if flagged {
			logger.Warn("Moderation flagged the prompt")
			return rag.Generation{Text: rag.BlockedMessage, Blocked: true}, nil
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(c.opts.ChatModel),
	}
	if c.opts.Temperature > 0 {
		params.Temperature = openai.Float(c.opts.Temperature)
	}
	if c.opts.TopP > 0 {
		params.TopP = openai.Float(c.opts.TopP)
	}
	if c.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.opts.MaxTokens))
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return rag.Generation{}, fmt.Errorf("%w: %w", rag.ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return rag.Generation{}, fmt.Errorf("%w: no choices returned", rag.ErrGenerationUnavailable)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return rag.Generation{Text: rag.BlockedMessage, Blocked: true}, nil
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return rag.Generation{}, fmt.Errorf("%w: empty answer", rag.ErrGenerationUnavailable)
	}

	if guard != nil {
		flagged, err := c.flagged(ctx, text)
		if err != nil {
			return rag.Generation{}, err
		}
		if flagged {
			logger.Warn("Moderation flagged the answer")
			return rag.Generation{Text: rag.BlockedMessage, Blocked: true}, nil
		}
	}
	return rag.Generation{Text: text}, nil
}

func (c *Client) flagged(ctx context.Context, text string) (bool, error) {
	resp, err := c.api.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.ModerationModel(c.opts.ModerationModel),
	})
	if err != nil {
		return false, fmt.Errorf("%w: moderation: %w", rag.ErrGenerationUnavailable, err)
	}
	for _, r := range resp.Results {
		if r.Flagged {
			return true, nil
		}
	}
	return false, nil
}
