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

// Package metrics exposes Prometheus instrumentation for the action
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActionsTotal counts action executions by action and outcome
	// (success, failure, policy_block).
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intentflow_actions_total",
			Help: "Total number of action requests processed",
		},
		[]string{"action", "outcome"},
	)

	// ActionDuration measures end-to-end action latency.
	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intentflow_action_duration_milliseconds",
			Help:    "Action request duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"action"},
	)

	// PolicyDenials counts denials by reason.
	PolicyDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intentflow_policy_denials_total",
			Help: "Total number of policy denials",
		},
		[]string{"reason"},
	)

	// ProviderCalls counts model invocations by provider and outcome.
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intentflow_provider_calls_total",
			Help: "Total number of LLM provider invocations",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderFallbacks counts invocations that fell back from the
	// primary provider.
	ProviderFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "intentflow_provider_fallbacks_total",
			Help: "Total number of provider fallbacks",
		},
	)

	// SchemaFallbacks counts validation-fallback payloads returned.
	SchemaFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "intentflow_schema_fallbacks_total",
			Help: "Total number of schema fallback payloads served",
		},
	)

	// ConfigResolutions counts org-config resolutions by source tag.
	ConfigResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intentflow_config_resolutions_total",
			Help: "Total org config resolutions by source",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(ActionDuration)
	prometheus.MustRegister(PolicyDenials)
	prometheus.MustRegister(ProviderCalls)
	prometheus.MustRegister(ProviderFallbacks)
	prometheus.MustRegister(SchemaFallbacks)
	prometheus.MustRegister(ConfigResolutions)
}
