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

package schema

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationResult is the outcome of validating (and possibly repairing)
// an action output payload.
type ValidationResult struct {
	Valid              bool                   `json:"valid"`
	Data               map[string]interface{} `json:"data"`
	Errors             []string               `json:"errors,omitempty"`
	Warnings           []string               `json:"warnings,omitempty"`
	CorrectionsApplied bool                   `json:"corrections_applied"`
	FallbackUsed       bool                   `json:"fallback_used"`
}

// Validator checks payloads against schemas from a Store.
type Validator struct {
	store  *Store
	logger *log.Logger
}

// NewValidator creates a validator over the given schema store.
func NewValidator(store *Store) *Validator {
	return &Validator{
		store:  store,
		logger: log.New(os.Stdout, "[SCHEMA] ", log.LstdFlags),
	}
}

// Validate checks data against a named schema as-is. Unlike the retry
// path it can report invalid.
func (v *Validator) Validate(data map[string]interface{}, schemaName string) ValidationResult {
	entry, err := v.store.Get(schemaName)
	if err != nil {
		// A missing schema must not fail the action: skip validation and
		// record the degradation.
		return ValidationResult{
			Valid:    true,
			Data:     data,
			Warnings: []string{fmt.Sprintf("schema %q unavailable, validation skipped: %v", schemaName, err)},
		}
	}

	if err := entry.Compiled.Validate(toAny(data)); err != nil {
		return ValidationResult{
			Valid:  false,
			Data:   data,
			Errors: validationMessages(err),
		}
	}
	return ValidationResult{Valid: true, Data: data}
}

// ValidateWithRetry validates data, applying the correction ladder when
// the first pass fails: explicit correction, then schema default, then
// the existing value. If the corrected payload is still invalid it
// synthesizes a fallback object with a type-appropriate zero value for
// every declared property. The retry path never reports invalid; a
// repaired or fallback result carries a warning instead.
func (v *Validator) ValidateWithRetry(data map[string]interface{}, schemaName string, corrections map[string]interface{}) ValidationResult {
	first := v.Validate(data, schemaName)
	if first.Valid {
		return first
	}

	entry, err := v.store.Get(schemaName)
	if err != nil {
		return ValidationResult{
			Valid:    true,
			Data:     data,
			Warnings: []string{fmt.Sprintf("schema %q unavailable, validation skipped: %v", schemaName, err)},
		}
	}

	corrected := v.applyCorrections(entry, data, corrections)
	if err := entry.Compiled.Validate(toAny(corrected)); err == nil {
		return ValidationResult{
			Valid:              true,
			Data:               corrected,
			Warnings:           []string{fmt.Sprintf("output repaired to satisfy schema %q", schemaName)},
			CorrectionsApplied: true,
		}
	}

	v.logger.Printf("output unrepairable for schema %s, synthesizing fallback: %v", schemaName, first.Errors)
	return ValidationResult{
		Valid:        true,
		Data:         v.fallbackObject(entry),
		Errors:       first.Errors,
		Warnings:     []string{fmt.Sprintf("fallback payload used for schema %q: original output invalid", schemaName)},
		FallbackUsed: true,
	}
}

// applyCorrections builds a repaired copy of data: for each declared
// property, an explicit correction wins, then a schema default, then the
// value already present. A declared default replaces the existing value
// on this pass; the pass only runs when the payload as a whole already
// failed validation. Properties missing from all three stay missing.
func (v *Validator) applyCorrections(entry *Entry, data, corrections map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, val := range data {
		out[k] = val
	}

	for name := range entry.Properties() {
		if corrections != nil {
			if val, ok := corrections[name]; ok {
				out[name] = val
				continue
			}
		}
		if def, ok := entry.Default(name); ok {
			out[name] = def
		}
	}
	return out
}

// fallbackObject builds a structurally valid stand-in: every declared
// property set to the zero value of its declared type.
func (v *Validator) fallbackObject(entry *Entry) map[string]interface{} {
	out := make(map[string]interface{})
	for name, raw := range entry.Properties() {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			out[name] = ""
			continue
		}
		if def, ok := prop["default"]; ok {
			out[name] = def
			continue
		}
		out[name] = zeroFor(prop["type"])
	}
	return out
}

func zeroFor(declaredType interface{}) interface{} {
	t, _ := declaredType.(string)
	switch t {
	case "number", "integer":
		return 0
	case "boolean":
		return false
	case "array":
		return []interface{}{}
	case "object":
		return map[string]interface{}{}
	default:
		return ""
	}
}

// validationMessages flattens a jsonschema error tree into strings.
func validationMessages(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return msgs
}

// toAny converts a typed map to interface{} for the compiled validator.
// jsonschema validates decoded JSON values directly.
func toAny(data map[string]interface{}) interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return data
}
