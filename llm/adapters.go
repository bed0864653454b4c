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

package llm

import (
	"context"
	"errors"

	"intentflow/backend/llm/anthropic"
	"intentflow/backend/llm/bedrock"
	"intentflow/backend/llm/gemini"
	"intentflow/backend/llm/ollama"
	"intentflow/backend/llm/openai"
)

// Adapters lift each backend package onto the unified Provider
// interface, translating request shapes and classifying errors. Backend
// packages stay free of orchestration types; the dependency runs one
// way only.

// Compile-time interface compliance.
var (
	_ Provider = (*AnthropicAdapter)(nil)
	_ Provider = (*OpenAIAdapter)(nil)
	_ Provider = (*GeminiAdapter)(nil)
	_ Provider = (*OllamaAdapter)(nil)
	_ Provider = (*BedrockAdapter)(nil)
)

// wrapErr classifies a backend error into a ProviderError.
func wrapErr(provider string, status int, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Code: ErrCodeTimeout, Message: err.Error(), Cause: err}
	}
	if status > 0 {
		return &ProviderError{
			Provider:   provider,
			StatusCode: status,
			Code:       ClassifyStatus(status),
			Message:    err.Error(),
			Cause:      err,
		}
	}
	return &ProviderError{Provider: provider, Code: ErrCodeUnavailable, Message: err.Error(), Cause: err}
}

// AnthropicAdapter adapts the anthropic backend.
type AnthropicAdapter struct {
	backend *anthropic.Provider
}

// NewAnthropicAdapter wraps an anthropic backend.
func NewAnthropicAdapter(backend *anthropic.Provider) *AnthropicAdapter {
	return &AnthropicAdapter{backend: backend}
}

func (a *AnthropicAdapter) Name() string          { return string(ProviderTypeAnthropic) }
func (a *AnthropicAdapter) Type() ProviderType    { return ProviderTypeAnthropic }
func (a *AnthropicAdapter) ListModels() []string  { return a.backend.SupportedModels() }
func (a *AnthropicAdapter) ValidateConfig() error { return a.backend.Validate() }

func (a *AnthropicAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	prompt := req.Prompt
	if req.JSONMode {
		// The Messages API has no JSON response mode; instruct instead.
		prompt += "\n\nRespond with valid JSON only, no surrounding prose or markdown."
	}

	resp, err := a.backend.Complete(ctx, anthropic.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, wrapErr(a.Name(), apiErr.StatusCode, err)
		}
		return nil, wrapErr(a.Name(), 0, err)
	}

	return &CompletionResponse{
		Content:      resp.Content,
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		Latency:      resp.Latency,
		Usage: UsageStats{
			PromptTokens:     resp.InputTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      resp.InputTokens + resp.OutputTokens,
		},
	}, nil
}

// OpenAIAdapter adapts the openai backend.
type OpenAIAdapter struct {
	backend *openai.Provider
}

// NewOpenAIAdapter wraps an openai backend.
func NewOpenAIAdapter(backend *openai.Provider) *OpenAIAdapter {
	return &OpenAIAdapter{backend: backend}
}

func (a *OpenAIAdapter) Name() string          { return string(ProviderTypeOpenAI) }
func (a *OpenAIAdapter) Type() ProviderType    { return ProviderTypeOpenAI }
func (a *OpenAIAdapter) ListModels() []string  { return a.backend.SupportedModels() }
func (a *OpenAIAdapter) ValidateConfig() error { return a.backend.Validate() }

func (a *OpenAIAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.backend.Complete(ctx, openai.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		JSONMode:     req.JSONMode,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, wrapErr(a.Name(), apiErr.StatusCode, err)
		}
		return nil, wrapErr(a.Name(), 0, err)
	}

	return &CompletionResponse{
		Content:      resp.Content,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		Latency:      resp.Latency,
		Usage: UsageStats{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.PromptTokens + resp.CompletionTokens,
		},
	}, nil
}

// GeminiAdapter adapts the gemini backend.
type GeminiAdapter struct {
	backend *gemini.Provider
}

// NewGeminiAdapter wraps a gemini backend.
func NewGeminiAdapter(backend *gemini.Provider) *GeminiAdapter {
	return &GeminiAdapter{backend: backend}
}

func (a *GeminiAdapter) Name() string          { return string(ProviderTypeGemini) }
func (a *GeminiAdapter) Type() ProviderType    { return ProviderTypeGemini }
func (a *GeminiAdapter) ListModels() []string  { return a.backend.SupportedModels() }
func (a *GeminiAdapter) ValidateConfig() error { return a.backend.Validate() }

func (a *GeminiAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.backend.Complete(ctx, gemini.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		JSONMode:     req.JSONMode,
	})
	if err != nil {
		var apiErr *gemini.APIError
		if errors.As(err, &apiErr) {
			return nil, wrapErr(a.Name(), apiErr.StatusCode, err)
		}
		return nil, wrapErr(a.Name(), 0, err)
	}

	return &CompletionResponse{
		Content:      resp.Content,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		Latency:      resp.Latency,
		Usage: UsageStats{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      resp.PromptTokens + resp.OutputTokens,
		},
	}, nil
}

// OllamaAdapter adapts the ollama backend.
type OllamaAdapter struct {
	backend *ollama.Provider
}

// NewOllamaAdapter wraps an ollama backend.
func NewOllamaAdapter(backend *ollama.Provider) *OllamaAdapter {
	return &OllamaAdapter{backend: backend}
}

func (a *OllamaAdapter) Name() string          { return string(ProviderTypeOllama) }
func (a *OllamaAdapter) Type() ProviderType    { return ProviderTypeOllama }
func (a *OllamaAdapter) ListModels() []string  { return a.backend.SupportedModels() }
func (a *OllamaAdapter) ValidateConfig() error { return a.backend.Validate() }

func (a *OllamaAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.backend.Complete(ctx, ollama.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		JSONMode:     req.JSONMode,
	})
	if err != nil {
		var apiErr *ollama.APIError
		if errors.As(err, &apiErr) {
			return nil, wrapErr(a.Name(), apiErr.StatusCode, err)
		}
		return nil, wrapErr(a.Name(), 0, err)
	}

	return &CompletionResponse{
		Content: resp.Content,
		Model:   resp.Model,
		Latency: resp.Latency,
		Usage: UsageStats{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      resp.PromptTokens + resp.OutputTokens,
		},
	}, nil
}

// BedrockAdapter adapts the bedrock backend.
type BedrockAdapter struct {
	backend *bedrock.Provider
}

// NewBedrockAdapter wraps a bedrock backend.
func NewBedrockAdapter(backend *bedrock.Provider) *BedrockAdapter {
	return &BedrockAdapter{backend: backend}
}

func (a *BedrockAdapter) Name() string          { return string(ProviderTypeBedrock) }
func (a *BedrockAdapter) Type() ProviderType    { return ProviderTypeBedrock }
func (a *BedrockAdapter) ListModels() []string  { return a.backend.SupportedModels() }
func (a *BedrockAdapter) ValidateConfig() error { return a.backend.Validate() }

func (a *BedrockAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	prompt := req.Prompt
	if req.JSONMode {
		prompt += "\n\nRespond with valid JSON only, no surrounding prose or markdown."
	}

	resp, err := a.backend.Complete(ctx, bedrock.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
	})
	if err != nil {
		return nil, wrapErr(a.Name(), 0, err)
	}

	return &CompletionResponse{
		Content:      resp.Content,
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		Latency:      resp.Latency,
		Usage: UsageStats{
			PromptTokens:     resp.InputTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      resp.InputTokens + resp.OutputTokens,
		},
	}, nil
}
