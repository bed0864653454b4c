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

// Package prompt renders versioned prompt templates against a context
// payload. Templates support dot-path variables, conditional blocks, and
// iteration blocks. Rendering is pure: no provider or validation
// knowledge, no external state.
package prompt

import "time"

// OutputFormat declares how a template expects the model to answer.
type OutputFormat string

const (
	OutputJSON OutputFormat = "json"
	OutputText OutputFormat = "text"
)

// RetryPolicy controls same-provider retries before fallback.
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay        time.Duration `json:"retry_delay" yaml:"retry_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// Template is a versioned prompt definition. Identity is ID+Version.
type Template struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version" yaml:"version"`

	// Model configuration. Provider may be overridden per-org at
	// execution time; the template carries the authored default.
	Provider          string       `json:"provider" yaml:"provider"`
	Model             string       `json:"model" yaml:"model"`
	Temperature       *float64     `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP              *float64     `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens         *int         `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	FallbackProviders []string     `json:"fallback_providers,omitempty" yaml:"fallback_providers,omitempty"`
	RetryPolicy       *RetryPolicy `json:"retry_policy,omitempty" yaml:"retry_policy,omitempty"`

	SystemPrompt string       `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	UserPrompt   string       `json:"user_prompt" yaml:"user_prompt"`
	Variables    []string     `json:"variables,omitempty" yaml:"variables,omitempty"`
	OutputFormat OutputFormat `json:"output_format" yaml:"output_format"`
}

// EffectiveRetryPolicy returns the template's retry policy or a
// conservative default when none is authored.
func (t *Template) EffectiveRetryPolicy() RetryPolicy {
	if t.RetryPolicy != nil {
		return *t.RetryPolicy
	}
	return RetryPolicy{
		MaxRetries:        2,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2.0,
	}
}
