package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/resilience"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings/hashed"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings/ollama"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings/openai"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// APIKeyEnv is consulted for the remote credential when none is configured.
const APIKeyEnv = "OPENAI_API_KEY"

const defaultProbeTimeout = 5 * time.Second

// SelectConfig describes which backends are available. Only the presence of
// a remote credential and a local model decide the outcome.
type SelectConfig struct {
	// Remote variant, used when an API key is present.
	APIKey        string
	RemoteBaseURL string
	RemoteModel   string
	RemoteTimeout time.Duration

	// Local variant, used when LocalModel is set and the server answers.
	LocalURL     string
	LocalModel   string
	LocalTimeout time.Duration

	// FallbackDimensions is the bucket count of the hashed fallback.
	FallbackDimensions int

	// ProbeTimeout bounds each construction-time probe. Default: 5s.
	ProbeTimeout time.Duration

	// Breaker configures the runtime circuit breaker of network backends.
	Breaker resilience.CircuitBreakerConfig

	Metrics *observe.Metrics

	// Getenv replaces os.Getenv for the credential lookup.
	Getenv func(string) string
}

type candidate struct {
	variant  Variant
	provider embeddings.Provider
}

// Select probes the available backends once, in the order remote, local,
// fallback, and returns the first that answers. The hashed fallback cannot
// fail, so Select only errors when ctx is already done; the error then wraps
// [tool.ErrBackendUnavailable].
func Select(ctx context.Context, cfg SelectConfig) (*Backend, error) {
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	if cfg.APIKey == "" {
		cfg.APIKey = cfg.Getenv(APIKeyEnv)
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	group := resilience.NewFallbackGroup[candidate]()
	if cfg.APIKey != "" {
		var opts []openai.Option
		if cfg.RemoteBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.RemoteBaseURL))
		}
		if cfg.RemoteTimeout > 0 {
			opts = append(opts, openai.WithTimeout(cfg.RemoteTimeout))
		}
		p, err := openai.New(cfg.APIKey, cfg.RemoteModel, opts...)
		if err != nil {
			slog.Warn("remote embeddings misconfigured", "err", err)
		} else {
			group.Add(string(VariantRemote), candidate{VariantRemote, p})
		}
	}
	if cfg.LocalModel != "" {
		var opts []ollama.Option
		if cfg.LocalTimeout > 0 {
			opts = append(opts, ollama.WithTimeout(cfg.LocalTimeout))
		}
		p, err := ollama.New(cfg.LocalURL, cfg.LocalModel, opts...)
		if err != nil {
			slog.Warn("local embeddings misconfigured", "err", err)
		} else {
			group.Add(string(VariantLocal), candidate{VariantLocal, p})
		}
	}
	group.Add(string(VariantFallback), candidate{VariantFallback, hashed.New(cfg.FallbackDimensions)})

	choice, err := resilience.Select(group, func(c candidate) (int, error) {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
		vec, err := c.provider.Embed(probeCtx, "probe")
		if err != nil {
			return 0, fmt.Errorf("probe %s: %w: %w", c.variant, tool.ErrBackendUnavailable, err)
		}
		return len(vec), nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: select backend: %w", err)
	}

	opts := []BackendOption{WithMetrics(cfg.Metrics)}
	if choice.Value.variant != VariantFallback {
		bc := cfg.Breaker
		bc.Name = "embeddings-" + choice.Name
		onChange := bc.OnStateChange
		bc.OnStateChange = func(name string, from, to resilience.State) {
			cfg.Metrics.BreakerTransitions.Add(context.Background(), 1,
				metric.WithAttributes(observe.Attr("breaker", name), observe.Attr("to", to.String())))
			if onChange != nil {
				onChange(name, from, to)
			}
		}
		opts = append(opts, WithBreaker(resilience.NewCircuitBreaker(bc)))
	}

	slog.Info("embedding backend selected",
		"variant", choice.Name,
		"model", choice.Value.provider.ModelID(),
		"dimensions", choice.Result,
	)
	return NewBackend(choice.Value.provider, choice.Value.variant, opts...), nil
}
