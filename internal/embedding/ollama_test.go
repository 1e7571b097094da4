package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, url string, opts Options) *Client {
	t.Helper()
	opts.BaseURL = url
	if opts.Model == "" {
		opts.Model = "test-embed"
	}
	client, err := NewClient(opts, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "test-embed" || req["prompt"] != "hello" {
			t.Errorf("unexpected request body: %v", req)
		}

		json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Options{Dimension: 4})
	vec := client.Embed(context.Background(), "hello")

	if len(vec) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(vec))
	}
	if vec[1] != float32(0.2) {
		t.Errorf("expected 0.2, got %v", vec[1])
	}
}

func TestClient_Embed_FallsBackToZeroVector(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"boom"}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"embedding": [0.1,`))
		}},
		{"empty embedding", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"embedding": []}`))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := newTestClient(t, server.URL, Options{Dimension: 8, Timeout: 100 * time.Millisecond})
			vec := client.Embed(context.Background(), "hello")

			if len(vec) != 8 {
				t.Fatalf("expected zero vector of 8 dimensions, got %d", len(vec))
			}
			for i, v := range vec {
				if v != 0 {
					t.Fatalf("expected zero at %d, got %v", i, v)
				}
			}
		})
	}
}

func TestClient_EmbedBatch_IsolatesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "bad" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 1}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Options{Dimension: 2, Concurrency: 2})
	vecs := client.EmbedBatch(context.Background(), []string{"good", "bad", "good"})

	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[2][0] != 1 {
		t.Errorf("expected successful items to keep their vectors: %v", vecs)
	}
	if vecs[1][0] != 0 || vecs[1][1] != 0 {
		t.Errorf("expected failed item to be zero vector, got %v", vecs[1])
	}
}

func TestClient_EmbedBatch_BoundedConcurrency(t *testing.T) {
	var inFlight, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Options{Dimension: 1, Concurrency: 2})
	client.EmbedBatch(context.Background(), make([]string, 8))

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent requests, saw %d", peak)
	}
}
