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

package policy

import (
	"context"
	"fmt"
	"log"
	"os"

	"intentflow/backend/identity"
	"intentflow/backend/orgconfig"
)

// Enforcer evaluates per-request policy: enable flags, action and domain
// rules, then daily usage caps. Checks run in a fixed order and
// short-circuit on the first violation.
type Enforcer struct {
	counters CounterStore
	logger   *log.Logger
}

// EnforcerOption configures an Enforcer.
type EnforcerOption func(*Enforcer)

// WithEnforcerLogger sets a custom logger.
func WithEnforcerLogger(l *log.Logger) EnforcerOption {
	return func(e *Enforcer) { e.logger = l }
}

// NewEnforcer creates a policy enforcer backed by the given counter store.
func NewEnforcer(counters CounterStore, opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{
		counters: counters,
		logger:   log.New(os.Stdout, "[POLICY] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OrgCounterKey is the counter key for an org's daily total.
func OrgCounterKey(orgID string) string {
	return fmt.Sprintf("actions:org:%s", orgID)
}

// UserCounterKey is the counter key for one user's daily total within an
// org.
func UserCounterKey(orgID, userID string) string {
	return fmt.Sprintf("actions:org:%s:user:%s", orgID, userID)
}

// Evaluate runs the ordered policy checks for one action request. Counter
// increments are committed only when the decision is allow, exactly once
// per accepted action. Counter-store failures fail open: only explicit
// policy rules deny.
func (e *Enforcer) Evaluate(ctx context.Context, cfg *orgconfig.OrgConfig, id *identity.Context, origin, action string) Decision {
	// Upstream resolution always produces a config, but a nil here must
	// not itself deny: fail open.
	if cfg == nil {
		return allow(LimitsApplied{})
	}

	limits := LimitsApplied{
		MaxDailyActionsPerOrg:  cfg.MaxDailyActionsPerOrg,
		MaxDailyActionsPerUser: cfg.MaxDailyActionsPerUser,
	}

	if !cfg.Enabled {
		return deny(ReasonOrgDisabled, limits)
	}
	if !cfg.BrowserExtensionEnabled {
		return deny(ReasonExtensionDisabled, limits)
	}
	if !cfg.IsActionAllowed(action) {
		return deny(ReasonActionNotAllowed, limits)
	}
	if !cfg.IsDomainAllowed(origin) {
		return deny(ReasonDomainNotAllowed, limits)
	}

	// Usage caps last: an acquisition is the commit, so nothing cheaper
	// may run after it.
	orgAcquired := false
	if cfg.MaxDailyActionsPerOrg != nil {
		ok, err := e.counters.TryAcquire(ctx, OrgCounterKey(cfg.OrgID), *cfg.MaxDailyActionsPerOrg)
		if err != nil {
			e.logger.Printf("org counter unavailable for %s, failing open: %v", cfg.OrgID, err)
		} else if !ok {
			return deny(ReasonOrgDailyLimitExceeded, limits)
		} else {
			orgAcquired = true
		}
	}

	if cfg.MaxDailyActionsPerUser != nil && id != nil {
		ok, err := e.counters.TryAcquire(ctx, UserCounterKey(cfg.OrgID, id.UserID), *cfg.MaxDailyActionsPerUser)
		if err != nil {
			e.logger.Printf("user counter unavailable for %s/%s, failing open: %v", cfg.OrgID, id.UserID, err)
		} else if !ok {
			// Compensate the org slot taken above so a denied action does
			// not consume org budget.
			if orgAcquired {
				if rerr := e.counters.Release(ctx, OrgCounterKey(cfg.OrgID)); rerr != nil {
					e.logger.Printf("failed to release org counter for %s: %v", cfg.OrgID, rerr)
				}
			}
			return deny(ReasonUserDailyLimit, limits)
		}
	}

	return allow(limits)
}
