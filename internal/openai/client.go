// Package openai provides a thin wrapper around the official OpenAI Go SDK
// for embedding generation and theme synthesis.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyInput is returned when CreateEmbeddings is called with no texts.
	ErrEmptyInput = errors.New("openai: input texts are empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("openai: embedding dimensions must be positive")
	// ErrCountMismatch is returned when the API returns a different number of
	// embeddings than requested texts.
	ErrCountMismatch = errors.New("openai: embedding count mismatch")
	// ErrDimensionMismatch is returned when a response embedding length does
	// not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
)

const (
	defaultDimension = 1536

	// embeddingBatchMax bounds how many texts go into one API request.
	embeddingBatchMax = 256
)

// Client calls the OpenAI API via the official SDK for embeddings and
// chat-based theme generation.
type Client struct {
	sdk        openaisdk.Client
	dimensions int
	limiter    *rate.Limiter
	chatModel  openaisdk.ChatModel
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match DB column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithRateLimit caps embedding and chat requests per second.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates an OpenAI client using the official SDK. Requests go
// through a retrying HTTP client so transient network failures do not fail a
// whole analysis run.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil

	client := &Client{
		sdk: openaisdk.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(retryClient.StandardClient()),
		),
		dimensions: defaultDimension,
		chatModel:  openaisdk.ChatModelGPT4oMini,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// GenerateEmbeddings returns one embedding vector per input text, in order,
// using text-embedding-3-small. Large inputs are chunked into bounded API
// requests. Every returned slice has the configured dimension length.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("openai: text at index %d is empty", i)
		}
	}

	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += embeddingBatchMax {
		end := start + embeddingBatchMax
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}

		out = append(out, batch...)
	}

	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(out), len(texts))
	}

	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      openaisdk.EmbeddingModelTextEmbedding3Small,
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(data.Embedding), c.dimensions)
		}

		vec := make([]float32, len(data.Embedding))
		for d, v := range data.Embedding {
			vec[d] = float32(v)
		}
		out[i] = vec
	}

	return out, nil
}

// wait blocks on the rate limiter when one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("openai rate limiter: %w", err)
	}

	return nil
}
