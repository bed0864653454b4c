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
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"intentflow/backend/identity"
	"intentflow/backend/pipeline"
)

// maxBodyBytes caps request bodies; page-context payloads are text, not
// uploads.
const maxBodyBytes = 1 << 20

// errorBody is the JSON error envelope for transport-level failures.
// Policy denials never use it: those ride inside a 200 ActionResponse.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// handleAction executes one action. Credential verification failures are
// the only 401s; everything downstream of identity answers 200 and
// expresses its outcome in the response body.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ActionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if req.ActionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "actionId is required")
		return
	}

	// The Authorization header is an alternative carrier for the same
	// credential; the body field wins when both are present.
	if req.Credential == "" {
		req.Credential = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if req.Origin == "" {
		req.Origin = r.Header.Get("Origin")
	}

	resp, err := s.executor.Execute(r.Context(), req)
	if err != nil {
		var authErr *identity.AuthError
		if errors.As(err, &authErr) {
			writeError(w, http.StatusUnauthorized, authErr.Code, authErr.Message)
			return
		}
		s.log.ErrorWithCause("", "", "action execution error", err, map[string]interface{}{
			"action": req.ActionID,
		})
		writeError(w, http.StatusInternalServerError, "internal_error", "action execution failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleBind mints a bearer credential for a (session, user, org) triple.
func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req identity.BindRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	result, err := s.binder.Bind(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bind_failed", err.Error())
		return
	}

	s.log.Info(req.Org.OrgID, result.SessionID, "session bound", map[string]interface{}{
		"user": req.User.UserID,
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "intentflow-backend",
		"timestamp": time.Now().UTC(),
	})
}
