// Package ollama is a minimal client for the local model server's HTTP
// API: generate, tags, ps, and the idempotent GPU warm-up.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHost is used when OLLAMA_HOST is unset.
const DefaultHost = "http://127.0.0.1:11434"

// GenerateTimeout bounds one generation call.
const GenerateTimeout = 180 * time.Second

// WarmupKeepAlive is how long the warm-up pins a model in VRAM.
const WarmupKeepAlive = "30m"

// Client talks to one model server.
type Client struct {
	Host string
	HTTP *http.Client
}

// New builds a client for the given host, falling back to DefaultHost.
func New(host string) *Client {
	if host == "" {
		host = DefaultHost
	}
	return &Client{
		Host: host,
		HTTP: &http.Client{Timeout: GenerateTimeout},
	}
}

// GenerateRequest is the /api/generate body.
type GenerateRequest struct {
	Model     string                 `json:"model"`
	Prompt    string                 `json:"prompt"`
	System    string                 `json:"system,omitempty"`
	Stream    bool                   `json:"stream"`
	Options   map[string]interface{} `json:"options,omitempty"`
	KeepAlive string                 `json:"keep_alive,omitempty"`
}

// GenerateResponse is the non-streaming /api/generate reply.
type GenerateResponse struct {
	Model         string `json:"model"`
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	TotalDuration int64  `json:"total_duration"`
	EvalCount     int    `json:"eval_count"`
	EvalDuration  int64  `json:"eval_duration"`
}

// LatencyMs converts the server's nanosecond total into milliseconds.
func (r *GenerateResponse) LatencyMs() float64 {
	return float64(r.TotalDuration) / 1e6
}

// TokensPerSec derives throughput from eval counters.
func (r *GenerateResponse) TokensPerSec() float64 {
	if r.EvalDuration <= 0 {
		return 0
	}
	return float64(r.EvalCount) / (float64(r.EvalDuration) / 1e9)
}

// Generate runs one non-streaming generation.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false
	var resp GenerateResponse
	if err := c.post(ctx, "/api/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModelEntry is one installed or loaded model.
type ModelEntry struct {
	Name string `json:"name"`
}

type modelList struct {
	Models []ModelEntry `json:"models"`
}

// Tags lists installed models.
func (c *Client) Tags(ctx context.Context) ([]ModelEntry, error) {
	var list modelList
	if err := c.get(ctx, "/api/tags", &list); err != nil {
		return nil, err
	}
	return list.Models, nil
}

// PS lists models currently loaded in VRAM.
func (c *Client) PS(ctx context.Context) ([]ModelEntry, error) {
	var list modelList
	if err := c.get(ctx, "/api/ps", &list); err != nil {
		return nil, err
	}
	return list.Models, nil
}

// Up reports whether the server answers at all.
func (c *Client) Up(ctx context.Context) bool {
	_, err := c.Tags(ctx)
	return err == nil
}

// Warmup asks the server to load a model and hold it with a long
// keep-alive. Idempotent: re-warming a loaded model just extends the
// keep-alive.
func (c *Client) Warmup(ctx context.Context, model string) error {
	if model == "" {
		model = "gemma3:4b"
	}
	_, err := c.Generate(ctx, GenerateRequest{
		Model:     model,
		Prompt:    "ping",
		Options:   map[string]interface{}{"num_predict": 1},
		KeepAlive: WarmupKeepAlive,
	})
	if err != nil {
		return fmt.Errorf("warming %s: %w", model, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Host+path, nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("model server %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model server %s: %s: %s", req.URL.Path, resp.Status, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s reply: %w", req.URL.Path, err)
	}
	return nil
}
