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

package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key-for-unit-tests")

func newTestPair(devMode bool, ttl time.Duration) (*Binder, *Resolver) {
	binder := NewBinder(BinderOptions{SigningKey: testKey, Issuer: "intentflow", TokenTTL: ttl})
	resolver := NewResolver(ResolverOptions{SigningKey: testKey, Issuer: "intentflow", DevMode: devMode})
	return binder, resolver
}

func TestBindAndResolveRoundTrip(t *testing.T) {
	binder, resolver := newTestPair(false, time.Hour)

	result, err := binder.Bind(BindRequest{
		SessionID: "sess-1",
		User:      BindUser{UserID: "u-1", Email: "pat@example.com", Roles: []string{"member"}},
		Org:       BindOrg{OrgID: "acme", OrgName: "Acme", PlanTier: "enterprise"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	ctx, source, err := resolver.Resolve(result.Token)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, source)
	assert.Equal(t, "u-1", ctx.UserID)
	assert.Equal(t, "acme", ctx.OrgID)
	assert.Equal(t, "sess-1", ctx.SessionID)
	assert.Equal(t, "pat@example.com", ctx.Email)
	assert.True(t, ctx.HasRole("member"))
	assert.False(t, ctx.IsDevMode)
}

func TestBindGeneratesSessionID(t *testing.T) {
	binder, _ := newTestPair(false, time.Hour)

	result, err := binder.Bind(BindRequest{
		User: BindUser{UserID: "u-1"},
		Org:  BindOrg{OrgID: "acme"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
}

func TestBindValidatesRequiredFields(t *testing.T) {
	binder, _ := newTestPair(false, time.Hour)

	_, err := binder.Bind(BindRequest{Org: BindOrg{OrgID: "acme"}})
	assert.Error(t, err, "missing user id must be rejected")

	_, err = binder.Bind(BindRequest{User: BindUser{UserID: "u-1"}})
	assert.Error(t, err, "missing org id must be rejected")
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	binder, resolver := newTestPair(false, time.Millisecond)

	result, err := binder.Bind(BindRequest{
		User: BindUser{UserID: "u-1"},
		Org:  BindOrg{OrgID: "acme"},
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, _, err = resolver.Resolve(result.Token)
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, ErrCodeExpired, authErr.Code)
}

func TestResolveRejectsGarbage(t *testing.T) {
	_, resolver := newTestPair(false, time.Hour)

	tests := []struct {
		name       string
		credential string
		wantCode   string
	}{
		{"empty credential", "", ErrCodeMissingCredential},
		{"bearer prefix only", "Bearer ", ErrCodeMissingCredential},
		{"not a token", "garbage", ErrCodeMalformed},
		{"truncated token", "eyJhbGciOi", ErrCodeMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, source, err := resolver.Resolve(tt.credential)
			require.Error(t, err)
			assert.Equal(t, SourceAnonymous, source)

			var authErr *AuthError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.wantCode, authErr.Code)
		})
	}
}

func TestResolveRejectsWrongKey(t *testing.T) {
	binder := NewBinder(BinderOptions{SigningKey: []byte("other-key"), Issuer: "intentflow"})
	_, resolver := newTestPair(false, time.Hour)

	result, err := binder.Bind(BindRequest{
		User: BindUser{UserID: "u-1"},
		Org:  BindOrg{OrgID: "acme"},
	})
	require.NoError(t, err)

	_, _, err = resolver.Resolve(result.Token)
	assert.Error(t, err, "token signed with a different key must be rejected")
}

func TestDevCredentialRequiresOptIn(t *testing.T) {
	_, prodResolver := newTestPair(false, time.Hour)

	_, _, err := prodResolver.Resolve("dev:acme")
	require.Error(t, err, "dev credentials must never work without the opt-in")

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, ErrCodeDevModeDisabled, authErr.Code)

	_, devResolver := newTestPair(true, time.Hour)
	ctx, source, err := devResolver.Resolve("dev:acme")
	require.NoError(t, err)
	assert.Equal(t, SourceMock, source)
	assert.True(t, ctx.IsDevMode)
	assert.Equal(t, "acme", ctx.OrgID)
}

func TestResolveStripsBearerPrefix(t *testing.T) {
	binder, resolver := newTestPair(false, time.Hour)

	result, err := binder.Bind(BindRequest{
		User: BindUser{UserID: "u-1"},
		Org:  BindOrg{OrgID: "acme"},
	})
	require.NoError(t, err)

	ctx, _, err := resolver.Resolve("Bearer " + result.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", ctx.UserID)
}
