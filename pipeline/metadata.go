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

package pipeline

import (
	"time"

	"github.com/google/uuid"

	"intentflow/backend/identity"
	"intentflow/backend/llm"
	"intentflow/backend/orgconfig"
	"intentflow/backend/policy"
	"intentflow/backend/schema"
)

// metadataAssembler accumulates stage outcomes for one request and
// produces the final ExecutionMetadata. Pure aggregation: it never
// alters a stage's result, it only records it.
type metadataAssembler struct {
	meta  *ExecutionMetadata
	start time.Time
}

func newMetadataAssembler(actionID string) *metadataAssembler {
	return &metadataAssembler{
		meta: &ExecutionMetadata{
			RequestID: uuid.New().String(),
			ActionID:  actionID,
			Timestamp: time.Now().UTC(),
		},
		start: time.Now(),
	}
}

func (a *metadataAssembler) warn(msg string) {
	a.meta.Warnings = append(a.meta.Warnings, msg)
}

func (a *metadataAssembler) recordConfig(res *orgconfig.Resolution) {
	if res == nil {
		return
	}
	a.meta.ConfigSource = res.Source
	a.meta.OrgID = res.Config.OrgID
	a.meta.Warnings = append(a.meta.Warnings, res.Warnings...)
}

func (a *metadataAssembler) recordIdentity(id *identity.Context, src identity.Source) {
	a.meta.IdentitySource = string(src)
	if id == nil {
		return
	}
	if a.meta.OrgID == "" {
		a.meta.OrgID = id.OrgID
	}
	if id.IsDevMode {
		a.warn("request authenticated with dev-mode credentials")
	}
}

func (a *metadataAssembler) recordPolicy(d policy.Decision) {
	a.meta.PolicyAllowed = d.Allowed
	a.meta.PolicyReason = d.Reason
	a.meta.LimitsApplied = d.LimitsApplied
}

func (a *metadataAssembler) recordProvider(res *llm.Result) {
	if res == nil {
		return
	}
	a.meta.ProviderPrimary = res.ProviderPrimary
	a.meta.ProviderFinal = res.ProviderFinal
	a.meta.ModelPrimary = res.ModelPrimary
	a.meta.ModelFinal = res.ModelFinal
	a.meta.ProviderFallbackOccurred = res.FallbackOccurred
	a.meta.ProviderAttempts = res.Attempts
	a.meta.PromptTokens = res.Usage.PromptTokens
	a.meta.CompletionTokens = res.Usage.CompletionTokens
	a.meta.ProviderDurationMs = res.Latency.Milliseconds()

	if res.FallbackOccurred {
		a.warn("provider fallback occurred: " + res.ProviderPrimary + " -> " + res.ProviderFinal)
	}
}

func (a *metadataAssembler) recordValidation(res schema.ValidationResult) {
	a.meta.SchemaFallbackUsed = res.FallbackUsed
	a.meta.SchemaCorrectionsApplied = res.CorrectionsApplied
	a.meta.Warnings = append(a.meta.Warnings, res.Warnings...)
}

func (a *metadataAssembler) finish() *ExecutionMetadata {
	a.meta.DurationMs = time.Since(a.start).Milliseconds()
	return a.meta
}
