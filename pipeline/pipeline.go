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
	"fmt"
	"time"

	"intentflow/backend/identity"
	"intentflow/backend/llm"
	"intentflow/backend/metrics"
	"intentflow/backend/orgconfig"
	"intentflow/backend/policy"
	"intentflow/backend/prompt"
	"intentflow/backend/schema"
	"intentflow/backend/shared/logger"
	"intentflow/backend/usage"
)

// UsageSink receives completed action events. Satisfied by
// *usage.Recorder; a nil sink disables accounting.
type UsageSink interface {
	RecordAction(ctx context.Context, event usage.ActionEvent)
}

// Executor runs the full per-request sequence. All dependencies are
// injected; the executor itself holds no mutable state.
type Executor struct {
	configs    *orgconfig.Resolver
	identities *identity.Resolver
	enforcer   *policy.Enforcer
	catalog    *Catalog
	llm        *llm.Orchestrator
	validator  *schema.Validator
	usage      UsageSink
	log        *logger.Logger
}

// ExecutorDeps collects the executor's dependencies.
type ExecutorDeps struct {
	Configs    *orgconfig.Resolver
	Identities *identity.Resolver
	Enforcer   *policy.Enforcer
	Catalog    *Catalog
	LLM        *llm.Orchestrator
	Validator  *schema.Validator
	Usage      UsageSink
	Logger     *logger.Logger
}

// NewExecutor wires an executor from its dependencies.
func NewExecutor(deps ExecutorDeps) (*Executor, error) {
	switch {
	case deps.Configs == nil:
		return nil, fmt.Errorf("executor requires a config resolver")
	case deps.Identities == nil:
		return nil, fmt.Errorf("executor requires an identity resolver")
	case deps.Enforcer == nil:
		return nil, fmt.Errorf("executor requires a policy enforcer")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("executor requires an action catalog")
	case deps.LLM == nil:
		return nil, fmt.Errorf("executor requires an orchestrator")
	case deps.Validator == nil:
		return nil, fmt.Errorf("executor requires a schema validator")
	}

	if deps.Logger == nil {
		deps.Logger = logger.New("pipeline")
	}

	return &Executor{
		configs:    deps.Configs,
		identities: deps.Identities,
		enforcer:   deps.Enforcer,
		catalog:    deps.Catalog,
		llm:        deps.LLM,
		validator:  deps.Validator,
		usage:      deps.Usage,
		log:        deps.Logger,
	}, nil
}

// Execute runs one action request. The returned error is non-nil only
// for credential verification failures (the single fail-closed path);
// every other failure mode is expressed inside the response.
func (e *Executor) Execute(ctx context.Context, req ActionRequest) (*ActionResponse, error) {
	asm := newMetadataAssembler(req.ActionID)

	// Identity fails closed, before anything else is spent on the
	// request.
	id, idSource, err := e.identities.Resolve(req.Credential)
	if err != nil {
		return nil, err
	}
	asm.recordIdentity(id, idSource)

	action, ok := e.catalog.Get(req.ActionID)
	if !ok {
		return e.failure(asm, id, fmt.Sprintf("unknown action %q", req.ActionID)), nil
	}

	// The org id comes from the verified credential, so config
	// resolution follows identity rather than racing it. Both stages
	// complete before the policy gate either way, and resolution never
	// fails: it degrades through its source chain.
	resolution := e.configs.Resolve(ctx, id.OrgID)
	asm.recordConfig(&resolution)
	metrics.ConfigResolutions.WithLabelValues(string(resolution.Source)).Inc()

	decision := e.enforcer.Evaluate(ctx, resolution.Config, id, req.Origin, req.ActionID)
	asm.recordPolicy(decision)
	if !decision.Allowed {
		metrics.ActionsTotal.WithLabelValues(req.ActionID, "policy_block").Inc()
		metrics.PolicyDenials.WithLabelValues(string(decision.Reason)).Inc()
		e.log.Warn(id.OrgID, asm.meta.RequestID, "action blocked by policy", map[string]interface{}{
			"action": req.ActionID,
			"reason": string(decision.Reason),
		})

		meta := asm.finish()
		e.recordUsage(id, req.ActionID, meta, false, true)
		return &ActionResponse{
			Success:           false,
			PolicyBlock:       true,
			BlockReason:       decision.Reason,
			ExecutionMetadata: meta,
		}, nil
	}

	system, user, err := prompt.RenderTemplate(action.Template, e.templateContext(req, resolution.Config))
	if err != nil {
		return e.failure(asm, id, fmt.Sprintf("template rendering failed: %v", err)), nil
	}

	invokeCtx, cancel := context.WithTimeout(ctx, action.Timeout())
	defer cancel()

	result, err := e.llm.Invoke(invokeCtx, e.invokeRequest(action, resolution.Config, system, user))
	asm.recordProvider(result)
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(providerLabel(result, action), "failure").Inc()
		e.log.ErrorWithCause(id.OrgID, asm.meta.RequestID, "provider invocation failed", err, map[string]interface{}{
			"action": req.ActionID,
		})
		return e.failure(asm, id, fmt.Sprintf("action execution failed: %v", err)), nil
	}

	metrics.ProviderCalls.WithLabelValues(result.ProviderFinal, "success").Inc()
	if result.FallbackOccurred {
		metrics.ProviderFallbacks.Inc()
	}

	data := e.validateOutput(action, result, asm)

	meta := asm.finish()
	metrics.ActionsTotal.WithLabelValues(req.ActionID, "success").Inc()
	metrics.ActionDuration.WithLabelValues(req.ActionID).Observe(float64(meta.DurationMs))
	e.log.InfoWithDuration(id.OrgID, meta.RequestID, "action completed", float64(meta.DurationMs), map[string]interface{}{
		"action":   req.ActionID,
		"provider": meta.ProviderFinal,
		"fallback": meta.ProviderFallbackOccurred,
	})
	e.recordUsage(id, req.ActionID, meta, true, false)

	return &ActionResponse{
		Success:           true,
		Data:              data,
		ExecutionMetadata: meta,
	}, nil
}

// templateContext merges the extension payload with org-level context
// the templates may reference (tone, org name).
func (e *Executor) templateContext(req ActionRequest, cfg *orgconfig.OrgConfig) map[string]interface{} {
	context := make(map[string]interface{}, len(req.Payload)+2)
	for k, v := range req.Payload {
		context[k] = v
	}
	if cfg != nil {
		context["org"] = map[string]interface{}{
			"name": cfg.OrgName,
			"tone": string(cfg.ToneProfile.Style),
		}
	}
	context["origin"] = req.Origin
	return context
}

// invokeRequest applies org model preferences on top of the action's
// template: a per-action pin wins over the org default, which wins over
// the template's authored provider.
func (e *Executor) invokeRequest(action *Action, cfg *orgconfig.OrgConfig, system, user string) llm.InvokeRequest {
	req := llm.InvokeRequest{
		Template:     action.Template,
		SystemPrompt: system,
		Prompt:       user,
	}
	if cfg == nil {
		return req
	}

	prefs := cfg.ModelPreferences
	if prefs.DefaultProvider != "" {
		req.ProviderOverride = prefs.DefaultProvider
		req.ModelOverride = prefs.DefaultModel
	}
	if pin, ok := prefs.PerAction[action.Name]; ok && pin.Provider != "" {
		req.ProviderOverride = pin.Provider
		req.ModelOverride = pin.Model
	}
	return req
}

// validateOutput runs the correction-and-fallback ladder for JSON
// actions; text actions wrap the raw content.
func (e *Executor) validateOutput(action *Action, result *llm.Result, asm *metadataAssembler) map[string]interface{} {
	if action.Template.OutputFormat != prompt.OutputJSON {
		return map[string]interface{}{"text": result.Content}
	}

	validation := e.validator.ValidateWithRetry(result.Parsed, action.OutputSchema, nil)
	asm.recordValidation(validation)
	if validation.FallbackUsed {
		metrics.SchemaFallbacks.Inc()
	}
	return validation.Data
}

// failure finalizes metadata for a non-policy failure response.
func (e *Executor) failure(asm *metadataAssembler, id *identity.Context, msg string) *ActionResponse {
	meta := asm.finish()
	metrics.ActionsTotal.WithLabelValues(meta.ActionID, "failure").Inc()
	e.recordUsage(id, meta.ActionID, meta, false, false)
	return &ActionResponse{
		Success:           false,
		Error:             msg,
		ExecutionMetadata: meta,
	}
}

// recordUsage ships one event to the usage sink, detached from the
// request context so caller cancellation cannot drop accounting.
func (e *Executor) recordUsage(id *identity.Context, actionID string, meta *ExecutionMetadata, success, blocked bool) {
	if e.usage == nil {
		return
	}

	event := usage.ActionEvent{
		OrgID:            meta.OrgID,
		ActionID:         actionID,
		Provider:         meta.ProviderFinal,
		Model:            meta.ModelFinal,
		PromptTokens:     meta.PromptTokens,
		CompletionTokens: meta.CompletionTokens,
		Success:          success,
		PolicyBlocked:    blocked,
		FallbackOccurred: meta.ProviderFallbackOccurred,
		SchemaFallback:   meta.SchemaFallbackUsed,
		DurationMs:       meta.DurationMs,
	}
	if id != nil {
		event.UserID = id.UserID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.usage.RecordAction(ctx, event)
	}()
}

func providerLabel(result *llm.Result, action *Action) string {
	if result != nil && result.ProviderFinal != "" {
		return result.ProviderFinal
	}
	return action.Template.Provider
}
