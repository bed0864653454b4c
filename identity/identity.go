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

// Package identity verifies bearer credentials and mints them via session
// binding. Credential verification is the only stage in the pipeline that
// fails closed: a malformed or expired token rejects the request outright.
package identity

import (
	"fmt"
)

// Source indicates how a request's identity was established.
type Source string

const (
	// SourceRemote means a verified bearer token minted by session binding.
	SourceRemote Source = "remote"

	// SourceMock means the explicit development-mode placeholder identity.
	SourceMock Source = "mock"

	// SourceAnonymous means no credential was presented (rejected paths).
	SourceAnonymous Source = "anonymous"

	// SourceExtension means identity asserted directly by the extension,
	// accepted only through the session-binding endpoint.
	SourceExtension Source = "extension"
)

// Context is the per-request caller identity. It is produced fresh from a
// verified credential on every call and never persisted server-side.
type Context struct {
	UserID    string   `json:"user_id"`
	OrgID     string   `json:"org_id"`
	SessionID string   `json:"session_id"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	IsDevMode bool     `json:"is_dev_mode"`
}

// HasRole reports whether the identity carries the named role.
func (c *Context) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthError is returned for credential verification failures. It is the
// only error in the pipeline surfaced as an outright rejection.
type AuthError struct {
	Code    string
	Message string
	Cause   error
}

// Auth error codes.
const (
	ErrCodeMissingCredential = "missing_credential"
	ErrCodeMalformed         = "malformed_credential"
	ErrCodeExpired           = "expired_credential"
	ErrCodeDevModeDisabled   = "dev_mode_disabled"
)

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}
