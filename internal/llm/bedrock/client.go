// Package bedrock talks to Amazon Bedrock: Titan text embeddings through
// InvokeModel and answer generation through the Converse API.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ayxsth/cloudymate/internal/logger"
)

// RuntimeAPI is the subset of *bedrockruntime.Client used here.
type RuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Credentials are optional static keys. When AccessKeyID is empty the
// default AWS credential chain is used.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewRuntime builds a Bedrock runtime client for region.
func NewRuntime(ctx context.Context, region string, creds Credentials) (*bedrockruntime.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if creds.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
		logger.Debug("Using static AWS credentials for region %s", region)
	} else {
		logger.Debug("Using default AWS credential chain for region %s", region)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

func modelID(id string) *string { return aws.String(id) }
