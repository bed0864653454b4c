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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentflow/backend/identity"
	"intentflow/backend/llm"
	"intentflow/backend/orgconfig"
	"intentflow/backend/pipeline"
	"intentflow/backend/policy"
	"intentflow/backend/prompt"
	"intentflow/backend/schema"
)

const testSigningKey = "server-test-key"

type staticProvider struct {
	name    string
	content string
}

func (p *staticProvider) Name() string           { return p.name }
func (p *staticProvider) Type() llm.ProviderType { return llm.ProviderType(p.name) }
func (p *staticProvider) ListModels() []string   { return nil }
func (p *staticProvider) ValidateConfig() error  { return nil }

func (p *staticProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{
		Content: p.content,
		Model:   p.name + "-model",
		Usage:   llm.UsageStats{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12},
	}, nil
}

// newTestServer wires a full server. Orgs written to the local store are
// visible to config resolution; everything else resolves to the default.
func newTestServer(t *testing.T, orgs ...*orgconfig.OrgConfig) (*Server, *identity.Binder) {
	t.Helper()

	store := orgconfig.NewFileStore(filepath.Join(t.TempDir(), "orgs.json"))
	for _, cfg := range orgs {
		require.NoError(t, store.Put(cfg))
	}
	resolver := orgconfig.NewResolver(nil, nil, store)

	registry := llm.NewRegistry()
	require.NoError(t, registry.Register(&staticProvider{
		name:    "openai",
		content: `{"summary": "ok", "score": 0.5}`,
	}))

	schemas := schema.NewStore(t.TempDir())
	_, err := schemas.Register("analysis", []byte(`{
		"type": "object",
		"properties": {
			"summary": {"type": "string"},
			"score": {"type": "number"}
		},
		"required": ["summary", "score"]
	}`))
	require.NoError(t, err)

	catalog := pipeline.NewCatalog()
	require.NoError(t, catalog.Register(&pipeline.Action{
		Name: "analyze_risk",
		Template: &prompt.Template{
			ID:           "analyze_risk",
			Version:      "1",
			Provider:     "openai",
			UserPrompt:   "Analyze {{record.name}}",
			OutputFormat: prompt.OutputJSON,
			RetryPolicy:  &prompt.RetryPolicy{MaxRetries: 0, RetryDelay: time.Millisecond, BackoffMultiplier: 1},
		},
		OutputSchema: "analysis",
	}))

	executor, err := pipeline.NewExecutor(pipeline.ExecutorDeps{
		Configs:    resolver,
		Identities: identity.NewResolver(identity.ResolverOptions{SigningKey: []byte(testSigningKey), Issuer: "intentflow"}),
		Enforcer:   policy.NewEnforcer(policy.NewMemoryCounterStore()),
		Catalog:    catalog,
		LLM:        llm.NewOrchestrator(registry),
		Validator:  schema.NewValidator(schemas),
	})
	require.NoError(t, err)

	binder := identity.NewBinder(identity.BinderOptions{
		SigningKey: []byte(testSigningKey),
		Issuer:     "intentflow",
	})

	srv, err := New(Options{Executor: executor, Binder: binder})
	require.NoError(t, err)
	return srv, binder
}

func mintCredential(t *testing.T, binder *identity.Binder, orgID string) string {
	t.Helper()
	res, err := binder.Bind(identity.BindRequest{
		User: identity.BindUser{UserID: "u-1"},
		Org:  identity.BindOrg{OrgID: orgID},
	})
	require.NoError(t, err)
	return res.Token
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestActionEndpointSuccess(t *testing.T) {
	srv, binder := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/v1/action", map[string]interface{}{
		"actionId":   "analyze_risk",
		"payload":    map[string]interface{}{"record": map[string]interface{}{"name": "Deal"}},
		"credential": mintCredential(t, binder, "acme"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pipeline.ActionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Data["summary"])
	require.NotNil(t, resp.ExecutionMetadata)
	assert.NotEmpty(t, resp.ExecutionMetadata.RequestID)
}

func TestActionEndpointCredentialFromHeader(t *testing.T) {
	srv, binder := newTestServer(t)

	raw, err := json.Marshal(map[string]interface{}{
		"actionId": "analyze_risk",
		"payload":  map[string]interface{}{},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/action", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+mintCredential(t, binder, "acme"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActionEndpointUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/v1/action", map[string]interface{}{
		"actionId":   "analyze_risk",
		"credential": "not-a-token",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, identity.ErrCodeMalformed, body.Error.Code)
}

func TestActionEndpointPolicyBlockIsHTTP200(t *testing.T) {
	disabled := orgconfig.DefaultConfig("blocked-org")
	disabled.Enabled = false
	srv, binder := newTestServer(t, disabled)

	rec := postJSON(t, srv.Handler(), "/v1/action", map[string]interface{}{
		"actionId":   "analyze_risk",
		"payload":    map[string]interface{}{},
		"credential": mintCredential(t, binder, "blocked-org"),
	})
	require.Equal(t, http.StatusOK, rec.Code, "policy denials are not transport errors")

	var resp pipeline.ActionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.True(t, resp.PolicyBlock)
	assert.Equal(t, policy.ReasonOrgDisabled, resp.BlockReason)
}

func TestActionEndpointBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/action", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, srv.Handler(), "/v1/action", map[string]interface{}{
		"payload": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "actionId is required")
}

func TestBindEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/v1/session/bind", identity.BindRequest{
		User: identity.BindUser{UserID: "u-9", Email: "u9@example.com"},
		Org:  identity.BindOrg{OrgID: "acme"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result identity.BindResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Token)
	assert.NotEmpty(t, result.SessionID)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	// The minted token must round-trip through the action endpoint.
	rec = postJSON(t, srv.Handler(), "/v1/action", map[string]interface{}{
		"actionId":   "analyze_risk",
		"payload":    map[string]interface{}{},
		"credential": result.Token,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBindEndpointRejectsIncomplete(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/v1/session/bind", identity.BindRequest{
		Org: identity.BindOrg{OrgID: "acme"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	raw, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "intentflow_")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/action", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "executor")
}
