package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "cloudymate.yaml"
	DefaultEnvFile    = ".env"
)

// Provider selects the hosted model family.
type Provider string

const (
	ProviderBedrock Provider = "bedrock"
	ProviderOpenAI  Provider = "openai"
	// ProviderHash is the offline hashing embedder; only valid for embeddings.
	ProviderHash Provider = "hash"
)

// Config represents the application configuration
type Config struct {
	Provider   Provider         `yaml:"provider"`
	Server     ServerConfig     `yaml:"server"`
	AWS        AWSConfig        `yaml:"aws"`
	Bedrock    BedrockConfig    `yaml:"bedrock"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Store      StoreConfig      `yaml:"store"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Validation ValidationConfig `yaml:"validation"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

type BedrockConfig struct {
	ModelID          string `yaml:"model_id"`
	EmbeddingModelID string `yaml:"embedding_model_id"`
	GuardrailID      string `yaml:"guardrail_id"`
	GuardrailVersion string `yaml:"guardrail_version"`
}

type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	ChatModel       string `yaml:"chat_model"`
	EmbeddingModel  string `yaml:"embedding_model"`
	ModerationModel string `yaml:"moderation_model"`
	// Moderation turns the moderation endpoint on as the answer guardrail.
	Moderation bool `yaml:"moderation"`
}

type EmbeddingConfig struct {
	// Provider overrides the top-level provider for embeddings only.
	Provider   Provider `yaml:"provider"`
	Dimensions int      `yaml:"dimensions"`
}

type GenerationConfig struct {
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type StoreConfig struct {
	Dir string `yaml:"dir"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type RetrievalConfig struct {
	TopK            int `yaml:"top_k"`
	MaxContextChars int `yaml:"max_context_chars"`
}

type ValidationConfig struct {
	// FailOpen accepts borderline documents when the LLM classifier fails.
	FailOpen bool `yaml:"fail_open"`
}

type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderBedrock,
		Server: ServerConfig{
			Addr:        ":8000",
			UploadDir:   "./uploads",
			MaxUploadMB: 50,
		},
		AWS: AWSConfig{Region: "us-east-1"},
		Bedrock: BedrockConfig{
			ModelID:          "amazon.nova-lite-v1:0",
			EmbeddingModelID: "amazon.titan-embed-text-v2:0",
			GuardrailVersion: "DRAFT",
		},
		OpenAI: OpenAIConfig{
			ChatModel:       "gpt-4o-mini",
			EmbeddingModel:  "text-embedding-3-small",
			ModerationModel: "omni-moderation-latest",
		},
		Embedding: EmbeddingConfig{Dimensions: 1024},
		Generation: GenerationConfig{
			Temperature: 0.7,
			TopP:        0.9,
			MaxTokens:   2048,
		},
		Store:      StoreConfig{Dir: "./cloudymate_store"},
		Chunking:   ChunkingConfig{Size: 800, Overlap: 200},
		Retrieval:  RetrievalConfig{TopK: 4, MaxContextChars: 12000},
		Validation: ValidationConfig{FailOpen: true},
	}
}

// Load builds the configuration from defaults, the YAML file at path, the
// .env file and finally the process environment. An empty path reads
// cloudymate.yaml when it exists. Missing default files are not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// .env never overrides variables that are already set
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var errs []error
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(dst *bool, key string) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	provider := string(c.Provider)
	str(&provider, "CLOUDYMATE_PROVIDER")
	c.Provider = Provider(strings.ToLower(provider))
	embProvider := string(c.Embedding.Provider)
	str(&embProvider, "CLOUDYMATE_EMBEDDING_PROVIDER")
	c.Embedding.Provider = Provider(strings.ToLower(embProvider))

	str(&c.Server.Addr, "CLOUDYMATE_ADDR")
	str(&c.Server.UploadDir, "CLOUDYMATE_UPLOAD_DIR")

	str(&c.AWS.Region, "AWS_REGION", "AWS_DEFAULT_REGION")
	str(&c.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	str(&c.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	str(&c.AWS.SessionToken, "AWS_SESSION_TOKEN")

	str(&c.Bedrock.ModelID, "BEDROCK_MODEL_ID")
	str(&c.Bedrock.EmbeddingModelID, "EMBEDDING_MODEL_ID")
	str(&c.Bedrock.GuardrailID, "BEDROCK_GUARDRAIL_ID")
	str(&c.Bedrock.GuardrailVersion, "BEDROCK_GUARDRAIL_VERSION")

	str(&c.OpenAI.APIKey, "CLOUDYMATE_OPENAI_API_KEY", "OPENAI_API_KEY")
	str(&c.OpenAI.BaseURL, "CLOUDYMATE_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	str(&c.OpenAI.ChatModel, "CLOUDYMATE_OPENAI_CHAT_MODEL")
	str(&c.OpenAI.EmbeddingModel, "CLOUDYMATE_OPENAI_EMBEDDING_MODEL")
	flag(&c.OpenAI.Moderation, "CLOUDYMATE_OPENAI_MODERATION")

	num(&c.Embedding.Dimensions, "CLOUDYMATE_EMBEDDING_DIMENSIONS")
	str(&c.Store.Dir, "CLOUDYMATE_STORE_DIR")
	num(&c.Chunking.Size, "CLOUDYMATE_CHUNK_SIZE")
	num(&c.Chunking.Overlap, "CLOUDYMATE_CHUNK_OVERLAP")
	num(&c.Retrieval.TopK, "CLOUDYMATE_TOP_K")
	flag(&c.Validation.FailOpen, "CLOUDYMATE_VALIDATION_FAIL_OPEN")
	flag(&c.Log.Debug, "CLOUDYMATE_DEBUG")

	return errors.Join(errs...)
}

// EmbeddingProvider is the provider used for embeddings.
func (c *Config) EmbeddingProvider() Provider {
	if c.Embedding.Provider != "" {
		return c.Embedding.Provider
	}
	return c.Provider
}

// Validate checks required settings for the selected providers.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderBedrock:
		if c.AWS.Region == "" {
			errs = append(errs, errors.New("aws.region is required for the bedrock provider"))
		}
		if c.Bedrock.ModelID == "" {
			errs = append(errs, errors.New("bedrock.model_id is required"))
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.api_key is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q (want bedrock or openai)", c.Provider))
	}

	switch c.EmbeddingProvider() {
	case ProviderBedrock, ProviderHash:
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" && c.Provider != ProviderOpenAI {
			errs = append(errs, errors.New("openai.api_key is required for openai embeddings"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}
	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Store.Dir == "" {
		errs = append(errs, errors.New("store.dir is required"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
