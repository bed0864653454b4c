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

// Package policy gates action execution against a resolved org config:
// enable flags, action and domain allow-lists, and daily usage caps.
// Only explicit policy rules deny; upstream resolution failures never do.
package policy

// Reason explains why a policy decision denied execution.
type Reason string

const (
	ReasonNone                  Reason = "none"
	ReasonOrgDisabled           Reason = "org_disabled"
	ReasonExtensionDisabled     Reason = "extension_disabled"
	ReasonOrgDailyLimitExceeded Reason = "org_daily_limit_exceeded"
	ReasonUserDailyLimit        Reason = "user_daily_limit_exceeded"
	ReasonDomainNotAllowed      Reason = "domain_not_allowed"
	ReasonActionNotAllowed      Reason = "action_not_allowed"
)

// LimitsApplied echoes the numeric caps that were checked for a decision.
// Nil means the corresponding cap was unlimited.
type LimitsApplied struct {
	MaxDailyActionsPerOrg  *int `json:"max_daily_actions_per_org,omitempty"`
	MaxDailyActionsPerUser *int `json:"max_daily_actions_per_user,omitempty"`
}

// Decision is the ephemeral outcome of one policy evaluation.
type Decision struct {
	Allowed       bool          `json:"allowed"`
	Reason        Reason        `json:"reason"`
	LimitsApplied LimitsApplied `json:"limits_applied"`
}

func allow(limits LimitsApplied) Decision {
	return Decision{Allowed: true, Reason: ReasonNone, LimitsApplied: limits}
}

func deny(reason Reason, limits LimitsApplied) Decision {
	return Decision{Allowed: false, Reason: reason, LimitsApplied: limits}
}
