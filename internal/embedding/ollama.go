// Package embedding turns text into vectors through an Ollama embedding backend.
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/liliang-cn/synergereader/internal/domain"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const backendName = "embedding"

// Options configures a Client
type Options struct {
	BaseURL     string
	Model       string
	Dimension   int
	Timeout     time.Duration
	Concurrency int
}

// Client embeds text one item per request. Failures never propagate past a
// single item: a failed item becomes a zero vector of the configured dimension.
type Client struct {
	api         *api.Client
	model       string
	dim         int
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewClient creates an embedding client
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Dimension <= 0 {
		opts.Dimension = 384
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	return &Client{
		api:         api.NewClient(base, &http.Client{}),
		model:       opts.Model,
		dim:         opts.Dimension,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		logger:      logger,
	}, nil
}

// Model returns the embedding model identifier
func (c *Client) Model() string {
	return c.model
}

// Embed returns the vector for text, or a zero vector if the backend fails
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	vec, err := c.embedOne(ctx, text)
	if err != nil {
		c.logger.Warn("Embedding failed, using zero vector",
			zap.String("model", c.model),
			zap.Int("dimension", c.dim),
			zap.Error(err),
		)
		return make([]float32, c.dim)
	}
	return vec
}

// EmbedBatch embeds every text, preserving order. At most Concurrency requests
// are in flight at once.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			out[i] = c.Embed(ctx, text)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  c.model,
		Prompt: text,
	})
	if err != nil {
		var status api.StatusError
		if errors.As(err, &status) {
			return nil, &domain.TransportError{Backend: backendName, Status: status.StatusCode, Err: err}
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return nil, &domain.DecodeError{Source: backendName, Err: err}
		}
		return nil, &domain.TransportError{Backend: backendName, Err: err}
	}
	if len(resp.Embedding) == 0 {
		return nil, &domain.DecodeError{Source: backendName, Err: errors.New("response carries no embedding")}
	}

	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
