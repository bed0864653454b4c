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
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthorityServer(t *testing.T, secret string, configs map[string]remotePayload) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SecretHeader) != secret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		orgID := r.URL.Query().Get("orgId")
		payload, ok := configs[orgID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	}))
}

func TestResolveFromRemoteAuthority(t *testing.T) {
	maxOrg := 100
	server := newAuthorityServer(t, "s3cret", map[string]remotePayload{
		"acme": {
			OrgID:                   "acme",
			OrgName:                 "Acme Corp",
			Enabled:                 true,
			BrowserExtensionEnabled: true,
			MaxDailyActionsPerOrg:   &maxOrg,
			LLMProvider:             "anthropic",
			LLMModel:                "claude-3-5-sonnet-20241022",
			Features:                map[string]bool{"tone_rewrite": true},
		},
	})
	defer server.Close()

	authority := NewAuthorityClient(AuthorityOptions{BaseURL: server.URL, SharedSecret: "s3cret"})
	resolver := NewResolver(NewCache(time.Minute), authority, nil)

	res := resolver.Resolve(context.Background(), "acme")

	require.NotNil(t, res.Config)
	assert.Equal(t, SourceRemote, res.Source)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "Acme Corp", res.Config.OrgName)
	assert.Equal(t, "anthropic", res.Config.ModelPreferences.DefaultProvider)
	require.NotNil(t, res.Config.MaxDailyActionsPerOrg)
	assert.Equal(t, 100, *res.Config.MaxDailyActionsPerOrg)
	assert.True(t, res.Config.FeatureEnabled("tone_rewrite"))
}

func TestResolveCachesRemoteResult(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(remotePayload{OrgID: "acme", OrgName: "Acme", Enabled: true, BrowserExtensionEnabled: true})
	}))
	defer server.Close()

	authority := NewAuthorityClient(AuthorityOptions{BaseURL: server.URL})
	resolver := NewResolver(NewCache(time.Minute), authority, nil)

	first := resolver.Resolve(context.Background(), "acme")
	second := resolver.Resolve(context.Background(), "acme")

	assert.Equal(t, SourceRemote, first.Source)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, SourceRemote, second.CachedFrom)
	assert.Equal(t, 1, calls)
	require.NotEmpty(t, second.Warnings)
	assert.Contains(t, second.Warnings[0], "cache")
}

func TestResolveStaleCacheWhenRemoteDown(t *testing.T) {
	server := newAuthorityServer(t, "", map[string]remotePayload{
		"acme": {OrgID: "acme", OrgName: "Acme", Enabled: true, BrowserExtensionEnabled: true},
	})

	cache := NewCache(10 * time.Millisecond)
	authority := NewAuthorityClient(AuthorityOptions{BaseURL: server.URL})
	resolver := NewResolver(cache, authority, nil)

	res := resolver.Resolve(context.Background(), "acme")
	require.Equal(t, SourceRemote, res.Source)

	// Expire the cache entry and take the authority down.
	time.Sleep(20 * time.Millisecond)
	server.Close()

	res = resolver.Resolve(context.Background(), "acme")
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "Acme", res.Config.OrgName)

	foundRemoteWarning := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "remote") {
			foundRemoteWarning = true
		}
	}
	assert.True(t, foundRemoteWarning, "expected a warning noting remote unavailability, got %v", res.Warnings)
}

func TestResolveFallsBackToLocalStore(t *testing.T) {
	server := newAuthorityServer(t, "", map[string]remotePayload{})
	server.Close() // authority unreachable

	store := NewFileStore(filepath.Join(t.TempDir(), "orgs.json"))
	require.NoError(t, store.Put(&OrgConfig{
		OrgID:                   "acme",
		OrgName:                 "Acme Local",
		Enabled:                 true,
		BrowserExtensionEnabled: true,
	}))

	authority := NewAuthorityClient(AuthorityOptions{BaseURL: server.URL})
	resolver := NewResolver(NewCache(time.Minute), authority, store)

	res := resolver.Resolve(context.Background(), "acme")
	assert.Equal(t, SourceLocal, res.Source)
	assert.Equal(t, "Acme Local", res.Config.OrgName)
	assert.NotEmpty(t, res.Warnings)
}

func TestResolveUnknownOrgReturnsDefault(t *testing.T) {
	server := newAuthorityServer(t, "", map[string]remotePayload{})
	defer server.Close()

	store := NewFileStore(filepath.Join(t.TempDir(), "orgs.json"))
	authority := NewAuthorityClient(AuthorityOptions{BaseURL: server.URL})
	resolver := NewResolver(NewCache(time.Minute), authority, store)

	res := resolver.Resolve(context.Background(), "nobody-home")

	require.NotNil(t, res.Config, "resolution must never fail")
	assert.Equal(t, SourceDefault, res.Source)
	assert.Equal(t, "nobody-home", res.Config.OrgID)
	assert.True(t, res.Config.Enabled)
	assert.NotEmpty(t, res.Warnings)
}

func TestResolveNoAuthorityNoStore(t *testing.T) {
	resolver := NewResolver(NewCache(time.Minute), nil, nil)

	res := resolver.Resolve(context.Background(), "acme")
	assert.Equal(t, SourceDefault, res.Source)
	require.NotNil(t, res.Config)
}

func TestBlockedActionTakesPrecedence(t *testing.T) {
	cfg := &OrgConfig{
		AllowedActions: []string{"summarize", "rewrite"},
		BlockedActions: []string{"rewrite"},
	}

	assert.True(t, cfg.IsActionAllowed("summarize"))
	assert.False(t, cfg.IsActionAllowed("rewrite"), "action in both lists must be blocked")
	assert.False(t, cfg.IsActionAllowed("translate"), "not on a non-empty allow-list")
}

func TestDomainAllowList(t *testing.T) {
	tests := []struct {
		name    string
		domains []string
		origin  string
		want    bool
	}{
		{"nil list allows everything", nil, "example.com", true},
		{"listed domain allowed", []string{"example.com"}, "example.com", true},
		{"unlisted domain denied", []string{"example.com"}, "evil.com", false},
		{"empty list does not restrict", []string{}, "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &OrgConfig{AllowedDomains: tt.domains}
			assert.Equal(t, tt.want, cfg.IsDomainAllowed(tt.origin))
		})
	}
}
