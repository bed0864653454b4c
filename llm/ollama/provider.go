// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ollama implements a self-hosted model backend over the Ollama
// generate API.
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

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second
	DefaultModel   = "llama3.1"
)

// HTTPClient abstracts the transport for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the Ollama backend.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider calls a local or remote Ollama instance. No credentials are
// required; an empty base URL means unconfigured.
type Provider struct {
	baseURL string
	model   string
	client  HTTPClient
}

// CompletionRequest is the backend-local request shape.
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	TopP         float64
	JSONMode     bool
}

// CompletionResponse is the backend-local result.
type CompletionResponse struct {
	Content      string
	Model        string
	PromptTokens int
	OutputTokens int
	Latency      time.Duration
}

// NewProvider creates an Ollama backend.
func NewProvider(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// SetHTTPClient replaces the transport. Used by tests.
func (p *Provider) SetHTTPClient(c HTTPClient) { p.client = c }

// Validate reports whether this backend is usable.
func (p *Provider) Validate() error {
	if p.baseURL == "" {
		return fmt.Errorf("ollama base URL is not configured")
	}
	return nil
}

// SupportedModels lists commonly pulled Ollama models. The server
// accepts any locally available model name.
func (p *Provider) SupportedModels() []string {
	return []string{"llama3.1", "llama3.2", "mistral", "qwen2.5"}
}

// Complete runs one non-streaming generate call.
func (p *Provider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}

	apiReq := generateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
	}
	if req.JSONMode {
		apiReq.Format = "json"
	}
	opts := map[string]interface{}{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		opts["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		apiReq.Options = opts
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama API call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &CompletionResponse{
		Content:      apiResp.Response,
		Model:        apiResp.Model,
		PromptTokens: apiResp.PromptEvalCount,
		OutputTokens: apiResp.EvalCount,
		Latency:      time.Since(start),
	}, nil
}

// APIError is a classified Ollama API failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama API error (status %d): %s", e.StatusCode, e.Message)
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Format  string                 `json:"format,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
