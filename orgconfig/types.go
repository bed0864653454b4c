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

// Package orgconfig resolves per-tenant configuration from an ordered chain
// of sources: in-memory cache, the remote configuration authority, the
// durable local record store, and finally a hardcoded default. Resolution
// never fails for a missing org; it degrades and tags the source it used.
package orgconfig

import (
	"time"
)

// PlanTier identifies the subscription tier of an organization.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPilot      PlanTier = "pilot"
	PlanEnterprise PlanTier = "enterprise"
	PlanCustom     PlanTier = "custom"
)

// Source indicates where a resolved OrgConfig came from.
type Source string

const (
	// SourceCache means the config was served from the in-memory cache.
	SourceCache Source = "cache"

	// SourceRemote means the config was fetched live from the remote
	// configuration authority.
	SourceRemote Source = "remote"

	// SourceLocal means the config was read from the durable local store.
	SourceLocal Source = "local"

	// SourceDefault means no record existed anywhere and a hardcoded
	// default was synthesized.
	SourceDefault Source = "default"
)

// ToneStyle is the writing style applied to generated output.
type ToneStyle string

const (
	ToneNeutral      ToneStyle = "neutral"
	ToneFormal       ToneStyle = "formal"
	ToneConsultative ToneStyle = "consultative"
	ToneCasual       ToneStyle = "casual"
)

// ToneProfile names the tone configuration an org has selected.
type ToneProfile struct {
	ID    string    `json:"id"`
	Style ToneStyle `json:"style"`
}

// ActionModelOverride pins a specific provider/model for one action.
type ActionModelOverride struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// ModelPreferences selects which LLM backend serves an org's actions.
type ModelPreferences struct {
	DefaultProvider string                         `json:"default_provider"`
	DefaultModel    string                         `json:"default_model,omitempty"`
	Temperature     *float64                       `json:"temperature,omitempty"`
	MaxTokens       *int                           `json:"max_tokens,omitempty"`
	PerAction       map[string]ActionModelOverride `json:"per_action,omitempty"`
}

// Limits holds per-page/session/action caps applied during execution.
type Limits struct {
	MaxActionsPerPage    int `json:"max_actions_per_page"`
	MaxActionsPerSession int `json:"max_actions_per_session"`
	MaxTokensPerAction   int `json:"max_tokens_per_action"`
}

// OrgConfig is the per-tenant policy and preference record.
//
// An empty AllowedDomains list places no restriction on origins.
// MaxDailyActionsPerOrg/PerUser nil means unlimited.
type OrgConfig struct {
	OrgID                   string           `json:"org_id"`
	OrgName                 string           `json:"org_name"`
	PlanTier                PlanTier         `json:"plan_tier"`
	AllowedActions          []string         `json:"allowed_actions,omitempty"`
	BlockedActions          []string         `json:"blocked_actions,omitempty"`
	ModelPreferences        ModelPreferences `json:"model_preferences"`
	ToneProfile             ToneProfile      `json:"tone_profile"`
	FeatureFlags            map[string]bool  `json:"feature_flags,omitempty"`
	Limits                  Limits           `json:"limits"`
	Enabled                 bool             `json:"enabled"`
	BrowserExtensionEnabled bool             `json:"browser_extension_enabled"`
	MaxDailyActionsPerOrg   *int             `json:"max_daily_actions_per_org,omitempty"`
	MaxDailyActionsPerUser  *int             `json:"max_daily_actions_per_user,omitempty"`
	AllowedDomains          []string         `json:"allowed_domains,omitempty"`

	Deleted   bool       `json:"deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsActionAllowed reports whether the named action may run for this org.
// An action present in both AllowedActions and BlockedActions is blocked.
func (c *OrgConfig) IsActionAllowed(action string) bool {
	for _, blocked := range c.BlockedActions {
		if blocked == action {
			return false
		}
	}
	if len(c.AllowedActions) == 0 {
		return true
	}
	for _, allowed := range c.AllowedActions {
		if allowed == action {
			return true
		}
	}
	return false
}

// IsDomainAllowed reports whether the request origin passes the org's
// domain allow-list. Only a non-empty list restricts origins.
func (c *OrgConfig) IsDomainAllowed(origin string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}
	for _, domain := range c.AllowedDomains {
		if domain == origin {
			return true
		}
	}
	return false
}

// FeatureEnabled reports whether a named feature flag is set.
func (c *OrgConfig) FeatureEnabled(name string) bool {
	return c.FeatureFlags[name]
}

// DefaultConfig synthesizes the hardcoded fallback config for an org with
// no record anywhere. It is deliberately permissive: resolution failures
// must not block execution.
func DefaultConfig(orgID string) *OrgConfig {
	return &OrgConfig{
		OrgID:                   orgID,
		OrgName:                 orgID,
		PlanTier:                PlanFree,
		Enabled:                 true,
		BrowserExtensionEnabled: true,
		ModelPreferences: ModelPreferences{
			DefaultProvider: "openai",
		},
		ToneProfile: ToneProfile{ID: "default", Style: ToneNeutral},
		Limits: Limits{
			MaxActionsPerPage:    10,
			MaxActionsPerSession: 50,
			MaxTokensPerAction:   2048,
		},
		UpdatedAt: time.Now().UTC(),
	}
}
