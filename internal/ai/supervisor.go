package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ModelSonnet is the default model
const ModelSonnet = "claude-sonnet-4-5-20250929"

// Supervisor wraps the Anthropic API with retries, a circuit breaker, a
// concurrency limit, and a request rate limit.
type Supervisor struct {
	client         *anthropic.Client
	model          string
	maxTokens      int
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
	logger         *slog.Logger

	// call performs one API request; replaced in tests
	call func(ctx context.Context, prompt string) (string, error)
}

// Config holds supervisor configuration
type Config struct {
	APIKey            string // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model             string // Model to use (default: ModelSonnet)
	MaxTokens         int    // Response token cap (default: 1024)
	RequestsPerMinute int    // Outbound rate limit (0 = unlimited)
	Retry             RetryConfig
	Logger            *slog.Logger
}

// NewSupervisor creates a new AI supervisor
func NewSupervisor(cfg *Config) (*Supervisor, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = ModelSonnet
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Use default retry config if not specified
	retry := cfg.Retry
	if retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout, logger)
		logger.Debug("circuit breaker initialized",
			"failure_threshold", retry.FailureThreshold,
			"success_threshold", retry.SuccessThreshold,
			"open_timeout", retry.OpenTimeout)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	s := &Supervisor{
		client:         &client,
		model:          model,
		maxTokens:      maxTokens,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
		limiter:        limiter,
		logger:         logger,
	}
	s.call = s.callMessages
	return s, nil
}

// Generate implements TextGenerator
func (s *Supervisor) Generate(ctx context.Context, prompt string) (string, error) {
	return s.CallAI(ctx, prompt, "generate")
}

// CallAI sends one prompt through the retry, breaker, and limit machinery
func (s *Supervisor) CallAI(ctx context.Context, prompt, operation string) (string, error) {
	var text string
	err := s.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		out, err := s.call(attemptCtx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}
	return text, nil
}

func (s *Supervisor) callMessages(ctx context.Context, prompt string) (string, error) {
	startTime := time.Now()
	response, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	s.logger.Debug("AI call complete",
		"model", s.model,
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
		"duration", time.Since(startTime))
	return responseText, nil
}

// HealthCheck returns an error while the circuit breaker is open
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if s.circuitBreaker != nil {
		state, failures, _ := s.circuitBreaker.GetMetrics()
		switch state {
		case CircuitOpen:
			return fmt.Errorf("AI supervisor unavailable: %w (failures=%d, retry in %v)",
				ErrCircuitOpen, failures, s.retry.OpenTimeout)
		case CircuitHalfOpen:
			s.logger.Info("AI supervisor in half-open state (probing for recovery)")
		case CircuitClosed:
		}
	}
	return nil
}
