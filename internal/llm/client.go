package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/metrics"
	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/pkg/circuitbreaker"
	"github.com/fin-agent/backend/pkg/logger"
	"github.com/fin-agent/backend/pkg/retry"
)

const embeddingBatchSize = 100

// Client wraps the text-generation and embedding capabilities behind a
// circuit breaker and bounded retries. Every call carries its own timeout so
// a hung upstream never hangs the pipeline.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	breaker        *circuitbreaker.CircuitBreaker
	retryCfg       retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	// Model overrides the client default for this one call.
	Model       string
	Temperature float32
	MaxTokens   int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

func NewClient(opts Options) *Client {
	apiCfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		apiCfg.BaseURL = opts.BaseURL
	}

	timeout := time.Duration(opts.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("model", opts.Model),
		zap.String("embedding_model", opts.EmbeddingModel),
	)

	return &Client{
		api:            openai.NewClientWithConfig(apiCfg),
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		temperature:    opts.Temperature,
		maxTokens:      opts.MaxTokens,
		timeout:        timeout,
		breaker: circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
			MaxRequests:      5,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Logger:           logger.GetLogger(),
		}),
		retryCfg: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// guarded runs one upstream call under the breaker and the retry policy with
// a per-call deadline.
func (c *Client) guarded(ctx context.Context, timeout time.Duration, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			return call(ctx)
		})
	})
}

// Complete generates a chat completion. Zero request fields fall back to the
// client defaults. Failures wrap ErrGeneration.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	if apiReq.Model == "" {
		apiReq.Model = c.model
	}
	if apiReq.Temperature == 0 {
		apiReq.Temperature = c.temperature
	}
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = c.maxTokens
	}

	var result *CompletionResponse
	err := c.guarded(ctx, c.timeout, func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("completion returned no choices")
		}

		metrics.LLMTokensUsed.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

		result = &CompletionResponse{
			Content: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}

	return result, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, c.timeout, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateBatchEmbeddings embeds texts in API-sized batches. Output order
// matches input order.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embed(ctx, 2*c.timeout, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(vectors)))

	return vectors, nil
}

func (c *Client) embed(ctx context.Context, timeout time.Duration, input []string) ([][]float32, error) {
	var vectors [][]float32

	err := c.guarded(ctx, timeout, func(ctx context.Context) error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: input,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(resp.Data) != len(input) {
			return fmt.Errorf("embedding count mismatch: got %d, expected %d",
				len(resp.Data), len(input))
		}

		vectors = vectors[:0]
		for _, data := range resp.Data {
			vec := make([]float32, len(data.Embedding))
			copy(vec, data.Embedding)
			vectors = append(vectors, vec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}
