// Package llm wraps a blocking chat-completion call against any
// OpenAI-compatible endpoint. A missing endpoint configuration is a
// distinct failure from a network failure so callers can report
// remediation instead of retrying.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/askdb/backend/pkg/circuitbreaker"
	"github.com/askdb/backend/pkg/logger"
	"github.com/askdb/backend/pkg/retry"
)

// ErrNotConfigured is returned when the endpoint address or model is
// missing. It is never wrapped in a transport error.
var ErrNotConfigured = errors.New("llm not configured: set llm.baseURL and llm.model (llm.apiKey optional for unauthenticated endpoints)")

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
	EmbeddingModel string
}

type Client struct {
	api         *openai.Client
	model       string
	embedModel  string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	configured  bool
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg Config) *Client {
	configured := cfg.BaseURL != "" && cfg.Model != ""

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    2,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if configured {
		logger.Info("LLM client initialized",
			zap.String("base_url", cfg.BaseURL),
			zap.String("model", cfg.Model),
		)
	} else {
		logger.Warn("LLM client not configured; generation requests will fail")
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		embedModel:  cfg.EmbeddingModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		configured:  configured,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Configured() bool {
	return c.configured
}

// Model returns the configured chat model name, for metric labels.
func (c *Client) Model() string {
	return c.model
}

// Complete sends a system/user prompt pair and returns the assistant
// text. The whole call is bounded by the configured timeout.
func (c *Client) Complete(ctx context.Context, system, user string) (string, Usage, error) {
	if !c.configured {
		return "", Usage{}, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}

	var content string
	var usage Usage

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.api.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("chat completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("chat completion: empty choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			usage = Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
			return nil
		})
	})
	if err != nil {
		return "", Usage{}, err
	}

	return content, usage, nil
}

// Embed returns one embedding vector per input text. Used only by the
// optional schema ranker; the generation pipeline never depends on it.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embeddings [][]float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.api.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: texts,
					Model: openai.EmbeddingModel(c.embedModel),
				},
			)
			if err != nil {
				return fmt.Errorf("embeddings: %w", err)
			}

			embeddings = make([][]float32, 0, len(resp.Data))
			for _, data := range resp.Data {
				vec := make([]float32, len(data.Embedding))
				copy(vec, data.Embedding)
				embeddings = append(embeddings, vec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return embeddings, nil
}
