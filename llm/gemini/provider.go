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

// Package gemini implements the Gemini model backend over the Google
// Generative Language API.
package gemini

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
	DefaultBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultTimeout   = 60 * time.Second
	DefaultMaxTokens = 4096
	DefaultModel     = "gemini-1.5-flash"
)

// HTTPClient abstracts the transport for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the Gemini backend.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider calls the Gemini generateContent API.
type Provider struct {
	apiKey  string
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
	FinishReason string
	PromptTokens int
	OutputTokens int
	Latency      time.Duration
}

// NewProvider creates a Gemini backend with defaults for missing fields.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// SetHTTPClient replaces the transport. Used by tests.
func (p *Provider) SetHTTPClient(c HTTPClient) { p.client = c }

// Validate reports whether this backend is usable.
func (p *Provider) Validate() error {
	if p.apiKey == "" {
		return fmt.Errorf("gemini API key is not configured")
	}
	return nil
}

// SupportedModels lists the Gemini models this backend accepts.
func (p *Provider) SupportedModels() []string {
	return []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash"}
}

// Complete runs one non-streaming generateContent call.
func (p *Provider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	apiReq := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: req.Prompt}},
		}},
		GenerationConfig: &generationConfig{MaxOutputTokens: maxTokens},
	}
	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature > 0 {
		apiReq.GenerationConfig.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		apiReq.GenerationConfig.TopP = &req.TopP
	}
	if req.JSONMode {
		apiReq.GenerationConfig.ResponseMimeType = "application/json"
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, parseAPIError(resp.StatusCode, raw)
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	text := ""
	finishReason := ""
	if len(apiResp.Candidates) > 0 {
		finishReason = apiResp.Candidates[0].FinishReason
		for _, prt := range apiResp.Candidates[0].Content.Parts {
			text += prt.Text
		}
	}

	return &CompletionResponse{
		Content:      text,
		Model:        model,
		FinishReason: finishReason,
		PromptTokens: apiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
		Latency:      time.Since(start),
	}, nil
}

// APIError is a classified Gemini API failure.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API error (status %d, %s): %s", e.StatusCode, e.Status, e.Message)
}

func parseAPIError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &APIError{StatusCode: status, Message: string(body)}
	}
	return &APIError{StatusCode: status, Status: errResp.Error.Status, Message: errResp.Error.Message}
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}
