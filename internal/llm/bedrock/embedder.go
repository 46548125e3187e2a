package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/sync/errgroup"

	"github.com/ayxsth/cloudymate/rag"
)

// DefaultParallelism bounds concurrent InvokeModel calls in EmbedBatch.
const DefaultParallelism = 4

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float64 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// Embedder embeds text with a Titan embedding model. Titan takes one text
// per request, so batches fan out over a bounded number of calls.
type Embedder struct {
	api         RuntimeAPI
	modelID     string
	dimensions  int
	Parallelism int
}

func NewEmbedder(api RuntimeAPI, modelID string, dimensions int) *Embedder {
	return &Embedder{
		api:         api,
		modelID:     modelID,
		dimensions:  dimensions,
		Parallelism: DefaultParallelism,
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(titanRequest{
		InputText:  text,
		Dimensions: e.dimensions,
		Normalize:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	out, err := e.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     modelID(e.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrEmbeddingUnavailable, err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %w", rag.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned by %s", rag.ErrEmbeddingUnavailable, e.modelID)
	}
	if e.dimensions > 0 && len(resp.Embedding) != e.dimensions {
		return nil, fmt.Errorf("%w: %s returned %d dimensions, want %d",
			rag.ErrEmbeddingUnavailable, e.modelID, len(resp.Embedding), e.dimensions)
	}
	return resp.Embedding, nil
}

// EmbedBatch embeds texts in order. The first failure cancels the rest.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	if e.Parallelism > 0 {
		g.SetLimit(e.Parallelism)
	}
	for i, text := range texts {
		g.Go(func() error {
			v, err := e.Embed(ctx, text)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
