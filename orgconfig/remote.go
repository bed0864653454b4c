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

package orgconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultAuthorityTimeout bounds every remote authority call so a slow
// upstream can never stall the request pipeline.
const DefaultAuthorityTimeout = 10 * time.Second

// SecretHeader carries the shared secret on authority requests.
const SecretHeader = "X-Config-Secret"

// ErrNotFound is returned by sources when no record exists for an org.
// The resolver treats it as "advance to the next source", never as a
// request failure.
var ErrNotFound = fmt.Errorf("orgconfig: record not found")

// AuthorityClient fetches live org configuration overrides from the remote
// configuration authority.
type AuthorityClient struct {
	baseURL      string
	sharedSecret string
	client       *http.Client
}

// AuthorityOptions configures an AuthorityClient.
type AuthorityOptions struct {
	BaseURL      string
	SharedSecret string
	Timeout      time.Duration
}

// NewAuthorityClient creates a client for the remote configuration
// authority.
func NewAuthorityClient(opts AuthorityOptions) *AuthorityClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthorityTimeout
	}
	return &AuthorityClient{
		baseURL:      opts.BaseURL,
		sharedSecret: opts.SharedSecret,
		client:       &http.Client{Timeout: timeout},
	}
}

// remotePayload is the wire format served by the authority.
type remotePayload struct {
	OrgID                   string          `json:"orgId"`
	OrgName                 string          `json:"orgName"`
	Enabled                 bool            `json:"enabled"`
	BrowserExtensionEnabled bool            `json:"browser_extension_enabled"`
	MaxDailyActionsPerOrg   *int            `json:"max_daily_actions_per_org"`
	MaxDailyActionsPerUser  *int            `json:"max_daily_actions_per_user"`
	AllowedDomains          []string        `json:"allowed_domains"`
	PlanTier                string          `json:"plan_tier"`
	AllowedActions          []string        `json:"allowed_actions"`
	BlockedActions          []string        `json:"blocked_actions"`
	LLMProvider             string          `json:"llmProvider"`
	LLMModel                string          `json:"llmModel"`
	Temperature             *float64        `json:"temperature"`
	MaxTokens               *int            `json:"maxTokens"`
	Features                map[string]bool `json:"features"`
}

// Fetch retrieves the org's configuration from the authority. Any network
// error, timeout, non-200 status, or decode failure is returned to the
// caller, which is expected to fall through to the next source.
func (a *AuthorityClient) Fetch(ctx context.Context, orgID string) (*OrgConfig, error) {
	if a.baseURL == "" {
		return nil, fmt.Errorf("authority not configured")
	}

	endpoint := fmt.Sprintf("%s/config?orgId=%s", a.baseURL, url.QueryEscape(orgID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build authority request: %w", err)
	}
	req.Header.Set(SecretHeader, a.sharedSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authority request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authority returned status %d", resp.StatusCode)
	}

	var payload remotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode authority response: %w", err)
	}

	return payload.toConfig(orgID), nil
}

// toConfig maps the authority wire format onto an OrgConfig, filling gaps
// from the hardcoded default so the result is always complete.
func (p *remotePayload) toConfig(orgID string) *OrgConfig {
	cfg := DefaultConfig(orgID)

	if p.OrgID != "" {
		cfg.OrgID = p.OrgID
	}
	if p.OrgName != "" {
		cfg.OrgName = p.OrgName
	}
	cfg.Enabled = p.Enabled
	cfg.BrowserExtensionEnabled = p.BrowserExtensionEnabled
	cfg.MaxDailyActionsPerOrg = p.MaxDailyActionsPerOrg
	cfg.MaxDailyActionsPerUser = p.MaxDailyActionsPerUser
	cfg.AllowedDomains = p.AllowedDomains
	cfg.AllowedActions = p.AllowedActions
	cfg.BlockedActions = p.BlockedActions

	if p.PlanTier != "" {
		cfg.PlanTier = PlanTier(p.PlanTier)
	}
	if p.LLMProvider != "" {
		cfg.ModelPreferences.DefaultProvider = p.LLMProvider
	}
	if p.LLMModel != "" {
		cfg.ModelPreferences.DefaultModel = p.LLMModel
	}
	cfg.ModelPreferences.Temperature = p.Temperature
	if p.MaxTokens != nil {
		cfg.ModelPreferences.MaxTokens = p.MaxTokens
		cfg.Limits.MaxTokensPerAction = *p.MaxTokens
	}
	if p.Features != nil {
		cfg.FeatureFlags = p.Features
	}
	cfg.UpdatedAt = time.Now().UTC()

	return cfg
}
