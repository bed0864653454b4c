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

// Package usage records per-action usage events to Postgres for billing
// and analytics. Recording is strictly fail-open: an insert failure is
// logged, never surfaced to the request path.
package usage

import (
	"context"
	"database/sql"
	"log"
)

// ActionEvent is one completed (or attempted) action execution.
type ActionEvent struct {
	OrgID            string
	UserID           string
	ActionID         string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Success          bool
	PolicyBlocked    bool
	FallbackOccurred bool
	SchemaFallback   bool
	DurationMs       int64
}

// Recorder writes action events to the usage_events table.
type Recorder struct {
	db     *sql.DB
	logger *log.Logger
}

// NewRecorder creates a usage recorder on an open database handle.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, logger: log.Default()}
}

// RecordAction inserts one action event. Errors are logged and
// swallowed: usage accounting must never fail an action.
func (r *Recorder) RecordAction(ctx context.Context, event ActionEvent) {
	if r.db == nil {
		return
	}

	cost := EstimateCostUSD(event.Model, event.PromptTokens, event.CompletionTokens)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_events (
			org_id, user_id, action_id, llm_provider, llm_model,
			prompt_tokens, completion_tokens, total_tokens,
			estimated_cost_usd, success, policy_blocked,
			provider_fallback, schema_fallback, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, event.OrgID, nullString(event.UserID), event.ActionID,
		nullString(event.Provider), nullString(event.Model),
		event.PromptTokens, event.CompletionTokens,
		event.PromptTokens+event.CompletionTokens,
		cost, event.Success, event.PolicyBlocked,
		event.FallbackOccurred, event.SchemaFallback, event.DurationMs)

	if err != nil {
		r.logger.Printf("[USAGE] failed to record action event for org %s: %v", event.OrgID, err)
	}
}

// nullString converts an empty string to NULL for insertion.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
