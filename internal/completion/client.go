package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gptme-server/internal/observability"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	outcomeSuccess  = "success"
	outcomeEmpty    = "empty"
	outcomeError    = "error"
	outcomeRejected = "rejected"
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerMinRequests      uint32
	BreakerFailureThreshold float64
}

// Client talks to an OpenAI compatible chat completions endpoint. Calls are
// bounded by Timeout and never retried; a circuit breaker fails fast while
// the provider is unhealthy.
type Client struct {
	api     *openai.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	metrics *observability.Collector
	logger  *zap.Logger
}

func NewClient(cfg Config, metrics *observability.Collector, logger *zap.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	c := &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		timeout: cfg.Timeout,
		tracer:  otel.Tracer(observability.TracerName),
		metrics: metrics,
		logger:  logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrEmptyCompletion) || errors.Is(err, context.Canceled)
		},
	})

	return c
}

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := c.tracer.Start(ctx, "completion.Complete", trace.WithAttributes(
		attribute.String("completion.model", req.Model),
		attribute.Int("completion.max_tokens", req.MaxTokens),
	))
	defer span.End()

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, req)
	})

	outcome := outcomeSuccess
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = outcomeRejected
		err = &GatewayError{
			Model:   req.Model,
			Message: "completion service temporarily unavailable",
			Err:     err,
		}
	case errors.Is(err, ErrEmptyCompletion):
		outcome = outcomeEmpty
	case err != nil:
		outcome = outcomeError
	}
	c.observe(req.Model, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("Completion failed",
			zap.String("model", req.Model),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return "", err
	}

	text := result.(string)
	span.SetAttributes(attribute.Int("completion.response_length", len(text)))
	return text, nil
}

func (c *Client) call(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: req.UserContent},
		},
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", translateError(req.Model, err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func translateError(model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	gwErr := &GatewayError{Model: model, Message: err.Error(), Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		gwErr.StatusCode = apiErr.HTTPStatusCode
		gwErr.Message = apiErr.Message
	case errors.As(err, &reqErr):
		gwErr.StatusCode = reqErr.HTTPStatusCode
		gwErr.Message = fmt.Sprintf("completion request failed with status %d", reqErr.HTTPStatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		gwErr.Message = "completion request timed out"
	}
	return gwErr
}

func (c *Client) observe(model, outcome string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.CompletionRequests.WithLabelValues(model, outcome).Inc()
	c.metrics.CompletionDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}
