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

// Package pipeline sequences one action request end to end: config and
// identity resolution, policy gating, prompt rendering, model
// invocation, output validation, and diagnostics assembly.
package pipeline

import (
	"time"

	"intentflow/backend/orgconfig"
	"intentflow/backend/policy"
)

// ActionRequest is one inbound action call from the extension.
type ActionRequest struct {
	// ActionID names the action to execute, e.g. "analyze_risk".
	ActionID string `json:"actionId"`

	// Payload is the normalized page-context payload scraped by the
	// extension. Structure is action specific; the pipeline treats it
	// as opaque template context.
	Payload map[string]interface{} `json:"payload"`

	// Credential is the bearer credential minted at session bind.
	Credential string `json:"credential"`

	// Origin is the page domain the payload was captured from.
	Origin string `json:"origin"`
}

// ActionResponse is the outcome returned to the caller. A policy denial
// is a successful response with PolicyBlock set, never a transport
// error, so the client can render its restricted state.
type ActionResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`

	PolicyBlock bool          `json:"policyBlock,omitempty"`
	BlockReason policy.Reason `json:"blockReason,omitempty"`

	ExecutionMetadata *ExecutionMetadata `json:"executionMetadata"`
}

// ExecutionMetadata aggregates per-stage diagnostics for one request.
// Fields are additive only: clients treat unknown fields as absent, so
// removing or renaming one is a breaking change.
type ExecutionMetadata struct {
	RequestID string    `json:"requestId"`
	ActionID  string    `json:"actionId"`
	OrgID     string    `json:"orgId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	ConfigSource   orgconfig.Source `json:"configSource,omitempty"`
	IdentitySource string           `json:"identitySource,omitempty"`

	PolicyAllowed bool                 `json:"policyAllowed"`
	PolicyReason  policy.Reason        `json:"policyReason,omitempty"`
	LimitsApplied policy.LimitsApplied `json:"limitsApplied,omitempty"`

	ProviderPrimary          string `json:"providerPrimary,omitempty"`
	ProviderFinal            string `json:"providerFinal,omitempty"`
	ModelPrimary             string `json:"modelPrimary,omitempty"`
	ModelFinal               string `json:"modelFinal,omitempty"`
	ProviderFallbackOccurred bool   `json:"providerFallbackOccurred"`
	ProviderAttempts         int    `json:"providerAttempts,omitempty"`

	SchemaFallbackUsed       bool `json:"schemaFallbackUsed"`
	SchemaCorrectionsApplied bool `json:"schemaCorrectionsApplied"`

	PromptTokens     int `json:"promptTokens,omitempty"`
	CompletionTokens int `json:"completionTokens,omitempty"`

	DurationMs         int64 `json:"durationMs"`
	ProviderDurationMs int64 `json:"providerDurationMs,omitempty"`

	// Warnings is non-empty whenever any stage degraded: cache or
	// default config, dev-mode identity, provider fallback, schema
	// repair or fallback.
	Warnings []string `json:"warnings,omitempty"`
}
