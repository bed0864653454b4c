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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentflow/backend/identity"
	"intentflow/backend/llm"
	"intentflow/backend/orgconfig"
	"intentflow/backend/policy"
	"intentflow/backend/prompt"
	"intentflow/backend/schema"
	"intentflow/backend/usage"
)

const testSigningKey = "test-signing-key"

// stubProvider is a scriptable llm.Provider.
type stubProvider struct {
	name    string
	content string
	err     error
}

func (s *stubProvider) Name() string           { return s.name }
func (s *stubProvider) Type() llm.ProviderType { return llm.ProviderType(s.name) }
func (s *stubProvider) ListModels() []string   { return []string{s.name + "-model"} }
func (s *stubProvider) ValidateConfig() error  { return nil }

func (s *stubProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{
		Content: s.content,
		Model:   s.name + "-model",
		Usage:   llm.UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// captureSink records usage events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []usage.ActionEvent
}

func (c *captureSink) RecordAction(_ context.Context, event usage.ActionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// wait blocks until n events arrive; recording is asynchronous.
func (c *captureSink) wait(t *testing.T, n int) []usage.ActionEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]usage.ActionEvent(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d usage events", n)
	return nil
}

const analysisSchema = `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"score": {"type": "number"}
	},
	"required": ["summary", "score"]
}`

type executorFixture struct {
	executor *Executor
	sink     *captureSink
	binder   *identity.Binder
}

// newFixture builds an executor around a scriptable provider. A non-nil
// authority handler adds the remote config tier; otherwise resolution
// falls through to the hardcoded default.
func newFixture(t *testing.T, provider *stubProvider, authority http.HandlerFunc) *executorFixture {
	t.Helper()

	var client *orgconfig.AuthorityClient
	if authority != nil {
		srv := httptest.NewServer(authority)
		t.Cleanup(srv.Close)
		client = orgconfig.NewAuthorityClient(orgconfig.AuthorityOptions{
			BaseURL:      srv.URL,
			SharedSecret: "secret",
		})
	}
	resolver := orgconfig.NewResolver(nil, client, nil)

	registry := llm.NewRegistry()
	require.NoError(t, registry.Register(provider))

	store := schema.NewStore(t.TempDir())
	_, err := store.Register("analysis", []byte(analysisSchema))
	require.NoError(t, err)

	catalog := NewCatalog()
	require.NoError(t, catalog.Register(&Action{
		Name: "analyze_risk",
		Template: &prompt.Template{
			ID:           "analyze_risk",
			Version:      "1",
			Provider:     provider.name,
			UserPrompt:   "Analyze {{record.name}} for {{org.name}}",
			OutputFormat: prompt.OutputJSON,
			RetryPolicy:  &prompt.RetryPolicy{MaxRetries: 0, RetryDelay: time.Millisecond, BackoffMultiplier: 1},
		},
		OutputSchema: "analysis",
	}))
	require.NoError(t, catalog.Register(&Action{
		Name: "draft_reply",
		Template: &prompt.Template{
			ID:           "draft_reply",
			Version:      "1",
			Provider:     provider.name,
			UserPrompt:   "Draft a reply to {{message}}",
			OutputFormat: prompt.OutputText,
		},
	}))

	sink := &captureSink{}
	executor, err := NewExecutor(ExecutorDeps{
		Configs:    resolver,
		Identities: identity.NewResolver(identity.ResolverOptions{SigningKey: []byte(testSigningKey), Issuer: "intentflow"}),
		Enforcer:   policy.NewEnforcer(policy.NewMemoryCounterStore()),
		Catalog:    catalog,
		LLM:        llm.NewOrchestrator(registry),
		Validator:  schema.NewValidator(store),
		Usage:      sink,
	})
	require.NoError(t, err)

	return &executorFixture{
		executor: executor,
		sink:     sink,
		binder: identity.NewBinder(identity.BinderOptions{
			SigningKey: []byte(testSigningKey),
			Issuer:     "intentflow",
		}),
	}
}

func (f *executorFixture) credential(t *testing.T, orgID string) string {
	t.Helper()
	res, err := f.binder.Bind(identity.BindRequest{
		User: identity.BindUser{UserID: "u-1", Email: "u@example.com"},
		Org:  identity.BindOrg{OrgID: orgID},
	})
	require.NoError(t, err)
	return res.Token
}

func orgAuthority(t *testing.T, payload map[string]interface{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}
}

func TestExecuteSuccessWithDefaultConfig(t *testing.T) {
	provider := &stubProvider{name: "openai", content: `{"summary": "low risk", "score": 0.2}`}
	f := newFixture(t, provider, nil)

	resp, err := f.executor.Execute(context.Background(), ActionRequest{
		ActionID:   "analyze_risk",
		Payload:    map[string]interface{}{"record": map[string]interface{}{"name": "Deal X"}},
		Credential: f.credential(t, "acme"),
		Origin:     "crm.example.com",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "low risk", resp.Data["summary"])

	meta := resp.ExecutionMetadata
	require.NotNil(t, meta)
	assert.Equal(t, orgconfig.SourceDefault, meta.ConfigSource)
	assert.Equal(t, "acme", meta.OrgID)
	assert.Equal(t, string(identity.SourceRemote), meta.IdentitySource)
	assert.Equal(t, "openai", meta.ProviderFinal)
	assert.False(t, meta.ProviderFallbackOccurred)
	assert.NotEmpty(t, meta.Warnings, "default config is a degradation")

	events := f.sink.wait(t, 1)
	assert.Equal(t, "acme", events[0].OrgID)
	assert.Equal(t, "u-1", events[0].UserID)
	assert.True(t, events[0].Success)
}

func TestExecuteOrgDisabledBlocks(t *testing.T) {
	provider := &stubProvider{name: "openai", content: `{"summary": "x", "score": 1}`}
	f := newFixture(t, provider, orgAuthority(t, map[string]interface{}{
		"orgId":                     "acme",
		"orgName":                   "Acme",
		"enabled":                   false,
		"browser_extension_enabled": true,
	}))

	resp, err := f.executor.Execute(context.Background(), ActionRequest{
		ActionID:   "analyze_risk",
		Payload:    map[string]interface{}{},
		Credential: f.credential(t, "acme"),
	})
	require.NoError(t, err, "policy blocks are responses, not errors")

	assert.False(t, resp.Success)
	assert.True(t, resp.PolicyBlock)
	assert.Equal(t, policy.ReasonOrgDisabled, resp.BlockReason)
	assert.Equal(t, orgconfig.SourceRemote, resp.ExecutionMetadata.ConfigSource)

	events := f.sink.wait(t, 1)
	assert.True(t, events[0].PolicyBlocked)
	assert.False(t, events[0].Success)
}

func TestExecuteInvalidCredentialRejects(t *testing.T) {
	provider := &stubProvider{name: "openai", content: `{}`}
	f := newFixture(t, provider, nil)

	_, err := f.executor.Execute(context.Background(), ActionRequest{
		ActionID:   "analyze_risk",
		Credential: "garbage-token",
	})
	require.Error(t, err)

	var authErr *identity.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestExecuteUnknownAction(t *testing.T) {
	provider := &stubProvider{name: "openai", content: `{}`}
	f := newFixture(t, provider, nil)

	resp, err := f.executor.Execute(context.Background(), ActionRequest{
		ActionID:   "does_not_exist",
		Credential: f.credential(t, "acme"),
	})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.False(t, resp.PolicyBlock)
	assert.Contains(t, resp.Error, "unknown action")
}

func TestExecuteSchemaFallback(t *testing.T) {
	// Parses as JSON but violates the schema and cannot be repaired.
	provider := &stubProvider{name: "openai", content: `{"summary": 42}`}
	f := newFixture(t, provider, nil)

	resp, err := f.executor.Execute(context.Background(), ActionRequest{
		ActionID:   "analyze_risk",
		Payload:    map[string]interface{}{},
		Credential: f.credential(t, "acme"),
	})
	require.NoError(t, err)

	assert.True(t, resp.Success, "schema failures never surface as action failures")
	assert.True(t, resp.ExecutionMetadata.SchemaFallbackUsed)
	assert.NotEmpty(t, resp.ExecutionMetadata.Warnings)
	assert.Equal(t, "", resp.Data["summary"], "fallback carries typed zero values")
}

func TestExecuteProviderExhaustionFails(t *testing.T) {
	provider := &stubProvider{name: "openai", err: &llm.ProviderError{
		Provider: "openai", Code: llm.ErrCodeServer, Message: "down",
	}}
	f := newFixture(t, provider, nil)

	resp, err := f.executor.Execute(context.Background(), ActionRequest{
		ActionID:   "analyze_risk",
		Payload:    map[string]interface{}{},
		Credential: f.credential(t, "acme"),
	})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.False(t, resp.PolicyBlock)
	assert.Contains(t, resp.Error, "action execution failed")

	events := f.sink.wait(t, 1)
	assert.False(t, events[0].Success)
	assert.False(t, events[0].PolicyBlocked)
}

func TestExecuteTextAction(t *testing.T) {
	provider := &stubProvider{name: "openai", content: "Dear customer, thank you."}
	f := newFixture(t, provider, nil)

	resp, err := f.executor.Execute(context.Background(), ActionRequest{
		ActionID:   "draft_reply",
		Payload:    map[string]interface{}{"message": "where is my order?"},
		Credential: f.credential(t, "acme"),
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "Dear customer, thank you.", resp.Data["text"])
	assert.False(t, resp.ExecutionMetadata.SchemaFallbackUsed)
}

func TestInvokeRequestModelPreferences(t *testing.T) {
	e := &Executor{}
	action := &Action{
		Name: "analyze_risk",
		Template: &prompt.Template{
			ID:         "analyze_risk",
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			UserPrompt: "p",
		},
	}

	t.Run("nil config keeps template defaults", func(t *testing.T) {
		req := e.invokeRequest(action, nil, "sys", "user")
		assert.Empty(t, req.ProviderOverride)
		assert.Empty(t, req.ModelOverride)
	})

	t.Run("org default overrides template", func(t *testing.T) {
		cfg := orgconfig.DefaultConfig("acme")
		cfg.ModelPreferences.DefaultProvider = "anthropic"
		cfg.ModelPreferences.DefaultModel = "claude-3-5-sonnet-20241022"

		req := e.invokeRequest(action, cfg, "sys", "user")
		assert.Equal(t, "anthropic", req.ProviderOverride)
		assert.Equal(t, "claude-3-5-sonnet-20241022", req.ModelOverride)
	})

	t.Run("per-action pin wins over org default", func(t *testing.T) {
		cfg := orgconfig.DefaultConfig("acme")
		cfg.ModelPreferences.DefaultProvider = "anthropic"
		cfg.ModelPreferences.PerAction = map[string]orgconfig.ActionModelOverride{
			"analyze_risk": {Provider: "gemini", Model: "gemini-1.5-flash"},
		}

		req := e.invokeRequest(action, cfg, "sys", "user")
		assert.Equal(t, "gemini", req.ProviderOverride)
		assert.Equal(t, "gemini-1.5-flash", req.ModelOverride)
	})
}
