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
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DevCredentialPrefix marks the explicit development-mode credential form.
// Tokens of this shape are only honored when the resolver was built with
// dev mode enabled; in production deployments they are rejected like any
// other malformed credential.
const DevCredentialPrefix = "dev:"

// Claims is the JWT claim set carried by bearer credentials.
type Claims struct {
	SessionID string   `json:"sid"`
	OrgID     string   `json:"org"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Resolver verifies bearer credentials into identity contexts.
type Resolver struct {
	signingKey []byte
	issuer     string
	devMode    bool
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// SigningKey is the HMAC key shared with the session binder.
	SigningKey []byte

	// Issuer is the expected token issuer.
	Issuer string

	// DevMode enables the development-mode credential form. Must never be
	// set in a production deployment; it is an explicit opt-in, not a
	// default.
	DevMode bool
}

// NewResolver creates a credential resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	return &Resolver{
		signingKey: opts.SigningKey,
		issuer:     opts.Issuer,
		devMode:    opts.DevMode,
	}
}

// Resolve verifies the credential and produces the caller's identity.
// It fails closed: malformed, unsigned, or expired credentials reject the
// request with an *AuthError.
func (r *Resolver) Resolve(credential string) (*Context, Source, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return nil, SourceAnonymous, &AuthError{
			Code:    ErrCodeMissingCredential,
			Message: "no credential presented",
		}
	}

	if strings.HasPrefix(credential, DevCredentialPrefix) {
		return r.resolveDev(credential)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.signingKey, nil
	}, jwt.WithIssuer(r.issuer), jwt.WithExpirationRequired())
	if err != nil {
		code := ErrCodeMalformed
		if errors.Is(err, jwt.ErrTokenExpired) {
			code = ErrCodeExpired
		}
		return nil, SourceAnonymous, &AuthError{
			Code:    code,
			Message: "credential verification failed",
			Cause:   err,
		}
	}
	if !token.Valid {
		return nil, SourceAnonymous, &AuthError{
			Code:    ErrCodeMalformed,
			Message: "credential is not valid",
		}
	}

	return &Context{
		UserID:    claims.Subject,
		OrgID:     claims.OrgID,
		SessionID: claims.SessionID,
		Email:     claims.Email,
		Roles:     claims.Roles,
	}, SourceRemote, nil
}

// resolveDev handles the explicit development-mode credential form
// "dev:<orgId>". It yields a placeholder identity flagged IsDevMode.
func (r *Resolver) resolveDev(credential string) (*Context, Source, error) {
	if !r.devMode {
		return nil, SourceAnonymous, &AuthError{
			Code:    ErrCodeDevModeDisabled,
			Message: "development-mode credentials are not enabled for this deployment",
		}
	}

	orgID := strings.TrimPrefix(credential, DevCredentialPrefix)
	if orgID == "" {
		orgID = "dev-org"
	}

	return &Context{
		UserID:    "dev-user",
		OrgID:     orgID,
		SessionID: "dev-session",
		Roles:     []string{"developer"},
		IsDevMode: true,
	}, SourceMock, nil
}
