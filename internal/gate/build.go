package gate

import (
	"context"
	"fmt"

	"github.com/ppiankov/guardrace/internal/config"
	"github.com/ppiankov/guardrace/internal/denylist"
	"github.com/ppiankov/guardrace/internal/guard"
	"github.com/ppiankov/guardrace/internal/llm"
	"github.com/ppiankov/guardrace/internal/producer"
	"github.com/ppiankov/guardrace/internal/ratelimit"
)

// BuildGuard assembles the configured guard chain: the rate limit when
// enabled, the denylist, then the LLM judge when one is configured.
// Rate limit counters start empty on every build.
func BuildGuard(cfg *config.Config) (guard.Guard, error) {
	dl, err := denylist.Load(cfg.Guard.Denylist)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}

	var chain guard.Chain
	limit := ratelimit.Limit{
		MaxRequests: cfg.Guard.RateLimit.MaxRequests,
		Window:      cfg.Guard.RateLimit.Window.Std(),
	}
	if limit.Enabled() {
		chain = append(chain, guard.NewRateLimit(ratelimit.New(limit)))
	}
	chain = append(chain, guard.NewDenylist(dl))

	if j := cfg.Guard.Judge; j.APIURL != "" {
		client := llm.New(llm.Endpoint{
			URL:       j.APIURL,
			Model:     j.Model,
			APIKey:    config.APIKey(j.APIKeyEnv),
			MaxTokens: 128,
		}, nil)
		chain = append(chain, guard.NewJudge(client))
	}
	return chain, nil
}

// BuildProducer creates the configured producer, wrapped with retries.
// onDelta receives streamed text for chat producers and may be nil.
func BuildProducer(ctx context.Context, cfg *config.Config, onDelta func(string)) (producer.Producer, error) {
	pc := cfg.Producer

	var p producer.Producer
	switch pc.Kind {
	case config.ProducerOpenAI:
		client := llm.New(llm.Endpoint{
			URL:       pc.APIURL,
			Model:     pc.Model,
			APIKey:    config.APIKey(pc.APIKeyEnv),
			MaxTokens: pc.MaxTokens,
		}, nil)
		p = &producer.Chat{Client: client, OnDelta: onDelta}
	case config.ProducerBedrock:
		b, err := producer.NewBedrock(ctx, producer.BedrockConfig{
			Region:    pc.Region,
			ModelID:   pc.Model,
			MaxTokens: int32(pc.MaxTokens),
		})
		if err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
		p = b
	case config.ProducerSteps:
		p = &producer.Steps{
			Steps:  pc.Steps,
			Delay:  pc.StepDelay.Std(),
			Result: "simulated response",
		}
	default:
		return nil, fmt.Errorf("gate: unknown producer kind %q", pc.Kind)
	}

	if pc.Retries > 0 {
		p = producer.Retry(p, producer.RetryConfig{MaxAttempts: pc.Retries + 1})
	}
	return p, nil
}
