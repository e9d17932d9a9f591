package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// RetryConfig configures exponential backoff around a provider.
type RetryConfig struct {
	MaxRetries      uint64        `yaml:"max_retries,omitempty"`
	InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time,omitempty"`
}

// DefaultRetryConfig returns conservative retry settings for network providers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  time.Minute,
	}
}

type retryingEmbedder struct {
	next   memory.Embedder
	cfg    RetryConfig
	logger zerolog.Logger
}

// WithRetry decorates an embedder with exponential backoff. The engine never
// retries on its own; wrap providers here when retries are wanted.
func WithRetry(next memory.Embedder, cfg RetryConfig, logger zerolog.Logger) memory.Embedder {
	if cfg.MaxRetries == 0 {
		return next
	}
	return &retryingEmbedder{
		next:   next,
		cfg:    cfg,
		logger: logger.With().Str("component", "embedding_retry").Logger(),
	}
}

func (r *retryingEmbedder) Model() string { return r.next.Model() }

func (r *retryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialInterval
	eb.MaxInterval = r.cfg.MaxInterval
	eb.MaxElapsedTime = r.cfg.MaxElapsedTime
	eb.Multiplier = 2.0
	eb.RandomizationFactor = 0.2
	eb.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.cfg.MaxRetries), ctx)

	var vec []float32
	attempt := 0
	operation := func() error {
		attempt++
		v, err := r.next.Embed(ctx, text)
		if err == nil {
			vec = v
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || memory.IsValidationError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).Int("attempt", attempt).Dur("retryIn", wait).Msg("Embedding failed, retrying")
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return vec, nil
}
