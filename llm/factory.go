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
	"fmt"

	"intentflow/backend/llm/anthropic"
	"intentflow/backend/llm/bedrock"
	"intentflow/backend/llm/gemini"
	"intentflow/backend/llm/ollama"
	"intentflow/backend/llm/openai"
)

// FactoryConfig collects backend configuration for registry assembly.
// Backends with missing credentials are still registered; candidate
// selection skips them via ValidateConfig.
type FactoryConfig struct {
	Anthropic anthropic.Config
	OpenAI    openai.Config
	Gemini    gemini.Config
	Ollama    ollama.Config

	// BedrockEnabled controls whether the AWS credential chain is
	// loaded at startup; nothing else opts Bedrock in.
	BedrockEnabled bool
	Bedrock        bedrock.Config
}

// BuildRegistry assembles a provider registry from configuration.
func BuildRegistry(ctx context.Context, cfg FactoryConfig) (*Registry, error) {
	registry := NewRegistry()

	providers := []Provider{
		NewAnthropicAdapter(anthropic.NewProvider(cfg.Anthropic)),
		NewOpenAIAdapter(openai.NewProvider(cfg.OpenAI)),
		NewGeminiAdapter(gemini.NewProvider(cfg.Gemini)),
		NewOllamaAdapter(ollama.NewProvider(cfg.Ollama)),
	}

	if cfg.BedrockEnabled {
		backend, err := bedrock.NewProvider(ctx, cfg.Bedrock)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize bedrock: %w", err)
		}
		providers = append(providers, NewBedrockAdapter(backend))
	}

	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
