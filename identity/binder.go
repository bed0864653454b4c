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
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long a minted bearer credential stays valid.
const DefaultTokenTTL = time.Hour

// BindRequest is the session-binding input: a (sessionId, user, org)
// triple asserted by a trusted caller. This endpoint is the one place
// identity is created; until it is hardened it must be treated as
// provisionally trusted input and kept off the public surface.
type BindRequest struct {
	SessionID string   `json:"sessionId"`
	User      BindUser `json:"user"`
	Org       BindOrg  `json:"org"`
}

// BindUser identifies the user being bound to a session.
type BindUser struct {
	UserID      string   `json:"userId"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Locale      string   `json:"locale,omitempty"`
}

// BindOrg identifies the org being bound to a session.
type BindOrg struct {
	OrgID    string `json:"orgId"`
	OrgName  string `json:"orgName,omitempty"`
	PlanTier string `json:"planTier,omitempty"`
}

// BindResult carries the minted credential back to the caller.
type BindResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	SessionID string    `json:"sessionId"`
}

// Binder mints bearer credentials from session-binding requests.
type Binder struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// BinderOptions configures a Binder.
type BinderOptions struct {
	SigningKey []byte
	Issuer     string
	TokenTTL   time.Duration
}

// NewBinder creates a session binder. The signing key must match the
// resolver's.
func NewBinder(opts BinderOptions) *Binder {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Binder{
		signingKey: opts.SigningKey,
		issuer:     opts.Issuer,
		ttl:        ttl,
	}
}

// Bind validates the triple and mints a signed, time-boxed bearer
// credential for it. A missing session id is generated server-side.
func (b *Binder) Bind(req BindRequest) (*BindResult, error) {
	if req.User.UserID == "" {
		return nil, fmt.Errorf("bind request requires a user id")
	}
	if req.Org.OrgID == "" {
		return nil, fmt.Errorf("bind request requires an org id")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := time.Now().UTC()
	expiresAt := now.Add(b.ttl)

	claims := Claims{
		SessionID: sessionID,
		OrgID:     req.Org.OrgID,
		Email:     req.User.Email,
		Roles:     req.User.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.User.UserID,
			Issuer:    b.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(b.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign credential: %w", err)
	}

	return &BindResult{
		Token:     signed,
		ExpiresAt: expiresAt,
		SessionID: sessionID,
	}, nil
}
