package ai

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/steveyegge/tuneup/internal/config"
)

// TextGenerator turns a prompt into free text. It is an optional
// capability: callers must tolerate ErrUnavailable and any other error.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrUnavailable is returned when no text-generation backend is configured
var ErrUnavailable = errors.New("text generation unavailable")

// Noop is the TextGenerator used when AI is disabled
type Noop struct{}

// Generate always fails with ErrUnavailable
func (Noop) Generate(ctx context.Context, prompt string) (string, error) {
	return "", ErrUnavailable
}

// GeneratorFunc adapts a function to TextGenerator
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// NewGenerator returns an Anthropic-backed Supervisor when cfg enables AI and
// an API key is present, and Noop otherwise.
func NewGenerator(cfg config.AIConfig, logger *slog.Logger) TextGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		logger.Info("AI disabled, workflow detection off")
		return Noop{}
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "ANTHROPIC_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		logger.Info("no API key found, workflow detection off", "env", keyEnv)
		return Noop{}
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.MaxConcurrentCalls > 0 {
		retry.MaxConcurrentCalls = cfg.MaxConcurrentCalls
	}
	if t := cfg.AITimeout(); t > 0 {
		retry.Timeout = t
	}

	supervisor, err := NewSupervisor(&Config{
		APIKey:            apiKey,
		Model:             cfg.Model,
		MaxTokens:         cfg.MaxTokens,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Retry:             retry,
		Logger:            logger,
	})
	if err != nil {
		logger.Warn("failed to create AI supervisor, workflow detection off", "error", err)
		return Noop{}
	}
	return supervisor
}
