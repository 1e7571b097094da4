// Package llm streams completions from an Ollama generation backend.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/liliang-cn/synergereader/internal/domain"
	"go.uber.org/zap"
)

const backendName = "generation"

// GenerateRequest describes one streamed completion
type GenerateRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Token is one streamed piece of output. A Token with a non-nil Err is the last
// value sent on the channel.
type Token struct {
	Content string
	Err     error
}

// Client calls /api/generate with streaming enabled
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a generation client. headerTimeout bounds the wait for the
// response headers only; the body may stream for as long as the backend runs.
func NewClient(baseURL, model string, headerTimeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if headerTimeout <= 0 {
		headerTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout

	return &Client{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Transport: transport},
		logger:  logger,
	}
}

// DefaultModel returns the model used when a request names none
func (c *Client) DefaultModel() string {
	return c.model
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Model       string          `json:"model"`
	Prompt      string          `json:"prompt"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
	Options     generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// GenerateStream starts a completion and relays its tokens. The returned error
// covers failures before the first byte of the body; later failures arrive as a
// Token with Err set. Cancelling ctx stops further reads.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan Token, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(generateRequest{
		Model:       model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
		Options: generateOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Backend: backendName, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, &domain.TransportError{
			Backend: backendName,
			Status:  resp.StatusCode,
			Err:     errors.New(string(bytes.TrimSpace(msg))),
		}
	}

	ch := make(chan Token, 64)
	go c.relay(ctx, resp.Body, ch)

	return ch, nil
}

// relay reads newline-delimited JSON until the backend closes the body.
// bufio.Reader reassembles lines split across network reads and has no line
// length limit.
func (c *Client) relay(ctx context.Context, body io.ReadCloser, ch chan<- Token) {
	defer close(ch)
	defer body.Close()

	send := func(t Token) bool {
		select {
		case ch <- t:
			return true
		case <-ctx.Done():
			return false
		}
	}

	reader := bufio.NewReader(body)
	for {
		line, readErr := reader.ReadBytes('\n')

		if line = bytes.TrimSpace(line); len(line) > 0 {
			var chunk generateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("Skipping malformed stream line",
					zap.Error(&domain.DecodeError{Source: backendName, Err: err}),
				)
			} else if chunk.Error != "" {
				send(Token{Err: &domain.TransportError{Backend: backendName, Err: errors.New(chunk.Error)}})
				return
			} else if chunk.Response != "" {
				if !send(Token{Content: chunk.Response}) {
					return
				}
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				send(Token{Err: ctx.Err()})
				return
			}
			if !errors.Is(readErr, io.EOF) {
				send(Token{Err: &domain.TransportError{Backend: backendName, Err: readErr}})
			}
			return
		}
	}
}
