package bedrock

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ayxsth/cloudymate/internal/logger"
	"github.com/ayxsth/cloudymate/rag"
)

// InferenceConfig holds the sampling parameters sent with every call.
type InferenceConfig struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Generator answers prompts with a Bedrock chat model via Converse.
type Generator struct {
	api       RuntimeAPI
	modelID   string
	inference InferenceConfig
}

func NewGenerator(api RuntimeAPI, modelID string, inference InferenceConfig) *Generator {
	return &Generator{api: api, modelID: modelID, inference: inference}
}

func (g *Generator) Generate(ctx context.Context, prompt string, guard *rag.Guardrail) (rag.Generation, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: modelID(g.modelID),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
		}},
		InferenceConfig: g.inferenceConfig(),
	}
	if guard != nil && guard.ID != "" {
		gc := &types.GuardrailConfiguration{
			GuardrailIdentifier: aws.String(guard.ID),
			GuardrailVersion:    aws.String(guard.Version),
		}
		if guard.Trace {
			gc.Trace = types.GuardrailTraceEnabled
		}
		input.GuardrailConfig = gc
	}

	out, err := g.api.Converse(ctx, input)
	if err != nil {
		return rag.Generation{}, fmt.Errorf("%w: %w", rag.ErrGenerationUnavailable, err)
	}

	text := outputText(out.Output)
	if out.StopReason == types.StopReasonGuardrailIntervened {
		logger.Warn("Bedrock guardrail intervened on %s", g.modelID)
		return rag.Generation{Text: text, Blocked: true}, nil
	}
	if text == "" {
		return rag.Generation{}, fmt.Errorf("%w: %s returned no text (stop reason %s)",
			rag.ErrGenerationUnavailable, g.modelID, out.StopReason)
	}
	return rag.Generation{Text: text}, nil
}

func (g *Generator) inferenceConfig() *types.InferenceConfiguration {
	ic := &types.InferenceConfiguration{}
	if g.inference.MaxTokens > 0 {
		ic.MaxTokens = aws.Int32(int32(g.inference.MaxTokens))
	}
	if g.inference.Temperature > 0 {
		ic.Temperature = aws.Float32(float32(g.inference.Temperature))
	}
	if g.inference.TopP > 0 {
		ic.TopP = aws.Float32(float32(g.inference.TopP))
	}
	return ic
}

func outputText(out types.ConverseOutput) string {
	msg, ok := out.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}
	return strings.TrimSpace(sb.String())
}
