package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ayxsth/cloudymate/rag"
)

type fakeRuntime struct {
	mu       sync.Mutex
	invoked  []titanRequest
	converse *bedrockruntime.ConverseInput

	invokeErr   error
	converseOut *bedrockruntime.ConverseOutput
	converseErr error
}

func (f *fakeRuntime) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.invokeErr != nil {
		return nil, f.invokeErr
	}
	var req titanRequest
	if err := json.Unmarshal(in.Body, &req); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.invoked = append(f.invoked, req)
	f.mu.Unlock()

	// encode the text length so ordering can be checked
	vec := make([]float64, req.Dimensions)
	vec[0] = float64(len(req.InputText))
	body, _ := json.Marshal(titanResponse{Embedding: vec})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func (f *fakeRuntime) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.converse = in
	return f.converseOut, f.converseErr
}

func textOutput(text string, stop types.StopReason) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		}},
		StopReason: stop,
	}
}

func TestEmbedderSendsTitanRequest(t *testing.T) {
	f := &fakeRuntime{}
	e := NewEmbedder(f, "amazon.titan-embed-text-v2:0", 8)

	vec, err := e.Embed(context.Background(), "What is Lambda?")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("expected 8 dimensions, got %d", len(vec))
	}
	if len(f.invoked) != 1 {
		t.Fatalf("expected 1 call, got %d", len(f.invoked))
	}
	req := f.invoked[0]
	if req.InputText != "What is Lambda?" || req.Dimensions != 8 || !req.Normalize {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestEmbedBatchKeepsOrder(t *testing.T) {
	f := &fakeRuntime{}
	e := NewEmbedder(f, "titan", 4)

	texts := []string{"a", "bbb", "cc", "dddddd", "e"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch returned error: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, text := range texts {
		if vecs[i][0] != float64(len(text)) {
			t.Fatalf("vector %d does not belong to %q", i, text)
		}
	}
}

func TestEmbedderWrapsErrors(t *testing.T) {
	f := &fakeRuntime{invokeErr: errors.New("throttled")}
	e := NewEmbedder(f, "titan", 4)

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestGeneratorReturnsText(t *testing.T) {
	f := &fakeRuntime{converseOut: textOutput("  Lambda is serverless compute.  ", types.StopReasonEndTurn)}
	g := NewGenerator(f, "amazon.nova-lite-v1:0", InferenceConfig{Temperature: 0.7, TopP: 0.9, MaxTokens: 2048})

	gen, err := g.Generate(context.Background(), "prompt", nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if gen.Blocked || gen.Text != "Lambda is serverless compute." {
		t.Fatalf("unexpected generation: %+v", gen)
	}

	in := f.converse
	if aws.ToString(in.ModelId) != "amazon.nova-lite-v1:0" {
		t.Fatalf("unexpected model id %q", aws.ToString(in.ModelId))
	}
	if in.GuardrailConfig != nil {
		t.Fatal("expected no guardrail config without a guardrail")
	}
	if aws.ToInt32(in.InferenceConfig.MaxTokens) != 2048 {
		t.Fatalf("unexpected max tokens %d", aws.ToInt32(in.InferenceConfig.MaxTokens))
	}
	if len(in.Messages) != 1 || in.Messages[0].Role != types.ConversationRoleUser {
		t.Fatalf("unexpected messages: %+v", in.Messages)
	}
}

func TestGeneratorAppliesGuardrail(t *testing.T) {
	f := &fakeRuntime{converseOut: textOutput("Sorry, blocked.", types.StopReasonGuardrailIntervened)}
	g := NewGenerator(f, "model", InferenceConfig{})

	gen, err := g.Generate(context.Background(), "prompt", &rag.Guardrail{ID: "gr-123", Version: "DRAFT", Trace: true})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !gen.Blocked {
		t.Fatal("expected blocked generation")
	}
	gc := f.converse.GuardrailConfig
	if gc == nil {
		t.Fatal("expected guardrail config")
	}
	if aws.ToString(gc.GuardrailIdentifier) != "gr-123" || aws.ToString(gc.GuardrailVersion) != "DRAFT" {
		t.Fatalf("unexpected guardrail config: %+v", gc)
	}
	if gc.Trace != types.GuardrailTraceEnabled {
		t.Fatalf("expected trace enabled, got %q", gc.Trace)
	}
}

func TestGeneratorWrapsErrors(t *testing.T) {
	f := &fakeRuntime{converseErr: errors.New("access denied")}
	g := NewGenerator(f, "model", InferenceConfig{})

	_, err := g.Generate(context.Background(), "prompt", nil)
	if !errors.Is(err, rag.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("expected cause in error, got %v", err)
	}
}
