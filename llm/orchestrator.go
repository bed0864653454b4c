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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"intentflow/backend/prompt"
)

// MaxTotalAttempts bounds attempts across all candidate providers for
// one invocation, regardless of retry policy.
const MaxTotalAttempts = 10

// InvokeRequest carries one orchestrated model call: the action's
// template plus the rendered prompts, with optional per-org overrides.
type InvokeRequest struct {
	Template     *prompt.Template
	SystemPrompt string
	Prompt       string

	// ProviderOverride and ModelOverride replace the template's
	// defaults when set (org-level model preferences).
	ProviderOverride string
	ModelOverride    string
}

// Result is the outcome of one orchestrated invocation, recording which
// providers were attempted for diagnostics.
type Result struct {
	Content string `json:"content"`

	// Parsed holds the decoded object for JSON-format templates.
	Parsed map[string]interface{} `json:"parsed,omitempty"`

	// ProviderPrimary is the authored primary (after any org override),
	// recorded even when it was skipped as unconfigured.
	ProviderPrimary  string `json:"provider_primary"`
	ProviderFinal    string `json:"provider_final"`
	ModelPrimary     string `json:"model_primary"`
	ModelFinal       string `json:"model_final"`
	FallbackOccurred bool   `json:"fallback_occurred"`
	Attempts         int    `json:"attempts"`

	Usage   UsageStats    `json:"usage"`
	Latency time.Duration `json:"latency"`
}

// Orchestrator selects a provider for each invocation, retries the
// selected provider per the template's retry policy, and advances
// through the configured fallback list when retries are exhausted.
type Orchestrator struct {
	registry *Registry
	logger   *log.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets a custom logger.
func WithOrchestratorLogger(l *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator over a provider registry.
func NewOrchestrator(registry *Registry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		logger:   log.New(os.Stdout, "[LLM] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// candidates returns the ordered providers to try: the primary if it is
// configured, then every configured fallback, deduplicated.
func (o *Orchestrator) candidates(primary string, fallbacks []string) []Provider {
	var out []Provider
	seen := make(map[string]bool)

	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if p, ok := o.registry.Get(name); ok && p.ValidateConfig() == nil {
			out = append(out, p)
		}
	}

	add(primary)
	for _, name := range fallbacks {
		add(name)
	}
	return out
}

// Invoke executes one model call with retry and fallback. It fails only
// when every configured candidate is exhausted.
func (o *Orchestrator) Invoke(ctx context.Context, req InvokeRequest) (*Result, error) {
	tmpl := req.Template
	if tmpl == nil {
		return nil, fmt.Errorf("invoke requires a template")
	}

	primary := req.ProviderOverride
	if primary == "" {
		primary = tmpl.Provider
	}
	model := req.ModelOverride
	if model == "" {
		model = tmpl.Model
	}

	providers := o.candidates(primary, tmpl.FallbackProviders)
	if len(providers) == 0 {
		return nil, fmt.Errorf("no configured provider for template %s (primary %q, fallbacks %v)",
			tmpl.ID, primary, tmpl.FallbackProviders)
	}

	policy := tmpl.EffectiveRetryPolicy()
	retryCfg := RetryConfig{
		MaxRetries:     policy.MaxRetries,
		InitialBackoff: policy.RetryDelay,
		BackoffFactor:  policy.BackoffMultiplier,
		MaxBackoff:     30 * time.Second,
		Jitter:         0.1,
	}

	completion := CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Model:        model,
		JSONMode:     tmpl.OutputFormat == prompt.OutputJSON,
	}
	if tmpl.MaxTokens != nil {
		completion.MaxTokens = *tmpl.MaxTokens
	}
	if tmpl.Temperature != nil {
		completion.Temperature = *tmpl.Temperature
	}
	if tmpl.TopP != nil {
		completion.TopP = *tmpl.TopP
	}

	result := &Result{
		ProviderPrimary: primary,
		ModelPrimary:    model,
	}

	start := time.Now()
	var lastErr error

	for _, provider := range providers {
		if result.Attempts >= MaxTotalAttempts {
			break
		}

		// The model override is meaningful only for the provider it was
		// authored against; fallback providers use their own default.
		attempt := completion
		if provider.Name() != primary {
			attempt.Model = ""
		}

		remaining := MaxTotalAttempts - result.Attempts - 1
		cfg := retryCfg
		if cfg.MaxRetries > remaining {
			cfg.MaxRetries = remaining
		}

		resp, err := RetryWithBackoff(ctx, cfg, func(ctx context.Context) (*CompletionResponse, error) {
			result.Attempts++
			resp, err := provider.Complete(ctx, attempt)
			if err != nil {
				o.logger.Printf("provider %s attempt %d failed: %v", provider.Name(), result.Attempts, err)
				return nil, err
			}
			if completion.JSONMode {
				if _, perr := DecodeJSONContent(resp.Content); perr != nil {
					o.logger.Printf("provider %s attempt %d returned unparseable JSON: %v", provider.Name(), result.Attempts, perr)
					return nil, perr
				}
			}
			return resp, nil
		})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		result.Content = resp.Content
		result.ProviderFinal = provider.Name()
		result.ModelFinal = resp.Model
		// Any serving provider other than the authored primary is a
		// fallback, including when the primary was never configured.
		result.FallbackOccurred = provider.Name() != primary
		result.Usage = resp.Usage
		result.Latency = time.Since(start)

		if completion.JSONMode {
			// Already validated above; decode cannot fail here.
			result.Parsed, _ = DecodeJSONContent(resp.Content)
		}

		if result.FallbackOccurred {
			o.logger.Printf("template %s fell back from %s to %s after %d attempts",
				tmpl.ID, result.ProviderPrimary, result.ProviderFinal, result.Attempts)
		}
		return result, nil
	}

	return nil, fmt.Errorf("all providers exhausted after %d attempts for template %s: %w",
		result.Attempts, tmpl.ID, lastErr)
}

// DecodeJSONContent parses structured model output, tolerating the
// markdown code fences some models wrap JSON in. A failure here is a
// parse-class provider error, eligible for retry and fallback.
func DecodeJSONContent(content string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, &ProviderError{
			Code:    ErrCodeParse,
			Message: fmt.Sprintf("structured output is not valid JSON: %v", err),
			Cause:   err,
		}
	}
	return parsed, nil
}
