package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ayxsth/cloudymate/internal/config"
	"github.com/ayxsth/cloudymate/internal/llm/bedrock"
	"github.com/ayxsth/cloudymate/internal/llm/openaicompat"
	"github.com/ayxsth/cloudymate/internal/logger"
	"github.com/ayxsth/cloudymate/internal/vectorstore"
	"github.com/ayxsth/cloudymate/rag"
)

// App owns the long-lived pieces built from the configuration.
type App struct {
	Config   *config.Config
	Pipeline *rag.Pipeline
	store    *vectorstore.SQLiteStore
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		runtime *bedrockruntime.Client
		oai     *openaicompat.Client
	)
	bedrockRuntime := func() (*bedrockruntime.Client, error) {
		if runtime != nil {
			return runtime, nil
		}
		rt, err := bedrock.NewRuntime(ctx, cfg.AWS.Region, bedrock.Credentials{
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			SessionToken:    cfg.AWS.SessionToken,
		})
		runtime = rt
		return rt, err
	}
	openaiClient := func() *openaicompat.Client {
		if oai == nil {
			oai = openaicompat.New(openaiOptions(cfg))
		}
		return oai
	}

	var embedder rag.Embedder
	switch cfg.EmbeddingProvider() {
	case config.ProviderBedrock:
		rt, err := bedrockRuntime()
		if err != nil {
			return nil, err
		}
		embedder = bedrock.NewEmbedder(rt, cfg.Bedrock.EmbeddingModelID, cfg.Embedding.Dimensions)
	case config.ProviderOpenAI:
		embedder = openaiClient()
	case config.ProviderHash:
		embedder = rag.NewHashEmbedder(cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider())
	}

	var (
		generator rag.Generator
		guard     *rag.Guardrail
	)
	switch cfg.Provider {
	case config.ProviderBedrock:
		rt, err := bedrockRuntime()
		if err != nil {
			return nil, err
		}
		generator = bedrock.NewGenerator(rt, cfg.Bedrock.ModelID, bedrock.InferenceConfig{
			Temperature: cfg.Generation.Temperature,
			TopP:        cfg.Generation.TopP,
			MaxTokens:   cfg.Generation.MaxTokens,
		})
		if cfg.Bedrock.GuardrailID != "" {
			guard = &rag.Guardrail{
				ID:      cfg.Bedrock.GuardrailID,
				Version: cfg.Bedrock.GuardrailVersion,
				Trace:   cfg.Log.Debug,
			}
		}
	case config.ProviderOpenAI:
		generator = openaiClient()
		if cfg.OpenAI.Moderation {
			guard = &rag.Guardrail{}
		}
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}

	chunker, err := rag.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	store := vectorstore.NewSQLiteStore(cfg.Store.Dir, embeddingModel(cfg))
	pipeline := rag.NewPipeline(embedder, store, generator, rag.Options{
		Chunker:         chunker,
		TopK:            cfg.Retrieval.TopK,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		Guardrail:       guard,
		FailOpen:        cfg.Validation.FailOpen,
	})

	logger.Debug("Provider %s, embeddings %s (%s), store %s, guardrail %t",
		cfg.Provider, cfg.EmbeddingProvider(), embeddingModel(cfg), store.Path(), guard != nil)

	return &App{Config: cfg, Pipeline: pipeline, store: store}, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

func openaiOptions(cfg *config.Config) openaicompat.Options {
	return openaicompat.Options{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		ChatModel:       cfg.OpenAI.ChatModel,
		EmbeddingModel:  cfg.OpenAI.EmbeddingModel,
		ModerationModel: cfg.OpenAI.ModerationModel,
		Dimensions:      cfg.Embedding.Dimensions,
		Temperature:     cfg.Generation.Temperature,
		TopP:            cfg.Generation.TopP,
		MaxTokens:       cfg.Generation.MaxTokens,
	}
}

func embeddingModel(cfg *config.Config) string {
	switch cfg.EmbeddingProvider() {
	case config.ProviderBedrock:
		return cfg.Bedrock.EmbeddingModelID
	case config.ProviderOpenAI:
		return cfg.OpenAI.EmbeddingModel
	default:
		return fmt.Sprintf("hash-%d", cfg.Embedding.Dimensions)
	}
}
