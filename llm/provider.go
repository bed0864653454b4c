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

package llm

import "context"

// Provider is the single capability surface every model backend
// exposes. Implementations must be safe for concurrent use.
type Provider interface {
	// Name is the routing identifier, e.g. "openai".
	Name() string

	// Type identifies the underlying implementation.
	Type() ProviderType

	// Complete generates one completion. Context carries cancellation
	// and the per-call timeout.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ListModels enumerates the models this provider can serve.
	ListModels() []string

	// ValidateConfig reports whether the provider is usable: credentials
	// present, endpoint well formed. A provider failing validation is
	// treated as unconfigured and skipped during candidate selection.
	ValidateConfig() error
}
