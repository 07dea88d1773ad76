package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/ppiankov/neurorouter"

	"github.com/ppiankov/guardrace/internal/model"
)

// ConverseAPI is the subset of the Bedrock runtime client Bedrock uses.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockConfig selects the model and credentials. Empty keys fall back to
// the default AWS credential chain.
type BedrockConfig struct {
	Region          string
	ModelID         string
	MaxTokens       int32
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Bedrock generates through the Bedrock Converse API. The request context
// is passed to the SDK, so cancellation aborts the in-flight call.
type Bedrock struct {
	api       ConverseAPI
	modelID   string
	maxTokens int32
}

var _ Producer = (*Bedrock)(nil)

// NewBedrock loads AWS configuration and creates a Bedrock producer.
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	if cfg.ModelID == "" {
		return nil, errors.New("bedrock: model id is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return NewBedrockWithAPI(bedrockruntime.NewFromConfig(awsCfg), cfg.ModelID, cfg.MaxTokens), nil
}

// NewBedrockWithAPI creates a Bedrock producer over an existing client.
func NewBedrockWithAPI(api ConverseAPI, modelID string, maxTokens int32) *Bedrock {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Bedrock{api: api, modelID: modelID, maxTokens: maxTokens}
}

// Produce sends the conversation to Bedrock.
func (b *Bedrock) Produce(ctx context.Context, req model.Request) (model.Artifact, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(b.modelID),
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(b.maxTokens)},
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case model.RoleAssistant:
			input.Messages = append(input.Messages, textMessage(types.ConversationRoleAssistant, m.Content))
		default:
			input.Messages = append(input.Messages, textMessage(types.ConversationRoleUser, m.Content))
		}
	}

	out, err := b.api.Converse(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Artifact{}, ctxErr
		}
		var throttled *types.ThrottlingException
		if errors.As(err, &throttled) {
			return model.Artifact{}, fmt.Errorf("%w: bedrock: %v", neurorouter.ErrRateLimited, err)
		}
		return model.Artifact{}, fmt.Errorf("bedrock: converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return model.Artifact{}, errors.New("bedrock: response carried no message")
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}

	art := model.Artifact{
		Content:      sb.String(),
		Model:        b.modelID,
		FinishReason: string(out.StopReason),
	}
	if out.Usage != nil {
		art.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		art.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return art, nil
}

func textMessage(role types.ConversationRole, text string) types.Message {
	return types.Message{
		Role:    role,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
	}
}
