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

// Package llm defines the unified provider abstraction for model
// backends and the orchestrator that selects, retries, and falls back
// among them.
package llm

import (
	"fmt"
	"time"
)

// ProviderType identifies a model backend implementation.
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeGemini    ProviderType = "gemini"
	ProviderTypeBedrock   ProviderType = "bedrock"
	ProviderTypeOllama    ProviderType = "ollama"
)

// CompletionRequest is the unified request shape passed to every
// provider.
type CompletionRequest struct {
	// Prompt is the rendered user prompt.
	Prompt string `json:"prompt"`

	// SystemPrompt optionally sets model behavior. Providers without a
	// native system channel prepend it to the prompt.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Model overrides the provider's default model when non-empty.
	Model string `json:"model,omitempty"`

	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`

	// JSONMode asks the provider for structured output where the API
	// supports it.
	JSONMode bool `json:"json_mode,omitempty"`
}

// CompletionResponse is the unified provider result.
type CompletionResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	Usage        UsageStats    `json:"usage"`
	Latency      time.Duration `json:"latency"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// UsageStats tracks token consumption for billing and diagnostics.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorCode classifies a provider failure for retry decisions.
type ErrorCode string

const (
	ErrCodeRateLimit   ErrorCode = "rate_limit"
	ErrCodeOverloaded  ErrorCode = "overloaded"
	ErrCodeTimeout     ErrorCode = "timeout"
	ErrCodeServer      ErrorCode = "server_error"
	ErrCodeAuth        ErrorCode = "auth_error"
	ErrCodeBadRequest  ErrorCode = "bad_request"
	ErrCodeParse       ErrorCode = "parse_error"
	ErrCodeUnavailable ErrorCode = "unavailable"
)

// ProviderError is a classified failure from a model backend. Content
// declared as structured that fails to parse is a ProviderError with
// ErrCodeParse: eligible for retry and fallback like any network fault.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       ErrorCode
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error (status %d, %s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s provider error (%s): %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the same provider is worth another attempt.
// Auth and bad-request failures are permanent for the duration of a
// request; everything else may be transient.
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case ErrCodeAuth, ErrCodeBadRequest:
		return false
	default:
		return true
	}
}

// ClassifyStatus maps an HTTP status to an error code.
func ClassifyStatus(status int) ErrorCode {
	switch {
	case status == 429:
		return ErrCodeRateLimit
	case status == 503:
		return ErrCodeOverloaded
	case status == 401 || status == 403:
		return ErrCodeAuth
	case status >= 500:
		return ErrCodeServer
	default:
		return ErrCodeBadRequest
	}
}
