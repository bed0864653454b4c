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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const riskSchema = `{
	"type": "object",
	"properties": {
		"risk_level": {"type": "string"},
		"score": {"type": "number"},
		"urgent": {"type": "boolean", "default": false},
		"factors": {"type": "array", "items": {"type": "string"}},
		"details": {"type": "object"}
	},
	"required": ["risk_level", "score"]
}`

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	store := NewStore(t.TempDir())
	_, err := store.Register("risk_analysis", []byte(riskSchema))
	require.NoError(t, err)
	return NewValidator(store)
}

func TestValidateAccepts(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate(map[string]interface{}{
		"risk_level": "high",
		"score":      float64(0.9),
	}, "risk_analysis")

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.False(t, res.FallbackUsed)
}

func TestValidateRejectsWithErrors(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate(map[string]interface{}{
		"risk_level": "high",
		"score":      "not a number",
	}, "risk_analysis")

	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestValidateWithRetryCorrections(t *testing.T) {
	v := newTestValidator(t)
	res := v.ValidateWithRetry(
		map[string]interface{}{"risk_level": "high", "score": "broken"},
		"risk_analysis",
		map[string]interface{}{"score": float64(0.5)},
	)

	assert.True(t, res.Valid)
	assert.True(t, res.CorrectionsApplied)
	assert.False(t, res.FallbackUsed)
	assert.Equal(t, float64(0.5), res.Data["score"])
	assert.Equal(t, "high", res.Data["risk_level"], "existing valid fields survive")
	assert.NotEmpty(t, res.Warnings)
}

func TestValidateWithRetryDefaultRepairsInvalidValue(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Register("report", []byte(`{
		"type": "object",
		"properties": {
			"summary": {"type": "string", "default": "n/a"},
			"score": {"type": "number"}
		},
		"required": ["summary", "score"]
	}`))
	require.NoError(t, err)
	v := NewValidator(store)

	res := v.ValidateWithRetry(map[string]interface{}{
		"summary": 42,
		"score":   float64(0.9),
	}, "report", nil)

	assert.True(t, res.Valid)
	assert.True(t, res.CorrectionsApplied)
	assert.False(t, res.FallbackUsed, "a default-based repair must not degrade to fallback")
	assert.Equal(t, "n/a", res.Data["summary"], "declared default outranks the invalid value")
	assert.Equal(t, float64(0.9), res.Data["score"], "valid sibling fields survive the repair")

	// An explicit correction outranks the declared default.
	res = v.ValidateWithRetry(
		map[string]interface{}{"summary": 42, "score": float64(0.9)},
		"report",
		map[string]interface{}{"summary": "fixed"},
	)
	assert.True(t, res.Valid)
	assert.False(t, res.FallbackUsed)
	assert.Equal(t, "fixed", res.Data["summary"])
}

func TestValidateWithRetryFallback(t *testing.T) {
	v := newTestValidator(t)
	res := v.ValidateWithRetry(
		map[string]interface{}{"score": "still broken"},
		"risk_analysis",
		nil,
	)

	assert.True(t, res.Valid, "retry path never reports invalid")
	assert.True(t, res.FallbackUsed)
	assert.NotEmpty(t, res.Warnings)

	// Fallback carries a type-appropriate zero for every declared
	// property, honoring declared defaults.
	assert.Equal(t, "", res.Data["risk_level"])
	assert.Equal(t, 0, res.Data["score"])
	assert.Equal(t, false, res.Data["urgent"])
	assert.Equal(t, []interface{}{}, res.Data["factors"])
	assert.Equal(t, map[string]interface{}{}, res.Data["details"])
}

func TestValidateWithRetryTotal(t *testing.T) {
	v := newTestValidator(t)

	inputs := []map[string]interface{}{
		nil,
		{},
		{"garbage": []interface{}{1, 2, 3}},
		{"risk_level": 42, "score": true, "factors": "nope"},
	}
	for _, input := range inputs {
		res := v.ValidateWithRetry(input, "risk_analysis", nil)
		assert.True(t, res.Valid)
	}
}

func TestMissingSchemaSkipsValidation(t *testing.T) {
	v := NewValidator(NewStore(t.TempDir()))
	data := map[string]interface{}{"anything": "goes"}

	res := v.ValidateWithRetry(data, "no_such_schema", nil)
	assert.True(t, res.Valid)
	assert.Equal(t, data, res.Data)
	assert.NotEmpty(t, res.Warnings)
}

func TestStoreLazyLoadAndCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk_analysis.json")
	require.NoError(t, os.WriteFile(path, []byte(riskSchema), 0o644))

	store := NewStore(dir)
	entry, err := store.Get("risk_analysis")
	require.NoError(t, err)
	assert.Equal(t, "risk_analysis", entry.Name)
	assert.Contains(t, entry.Properties(), "risk_level")

	// Delete the file; the cached entry keeps serving.
	require.NoError(t, os.Remove(path))
	again, err := store.Get("risk_analysis")
	require.NoError(t, err)
	assert.Same(t, entry, again)
}

func TestStoreRejectsBadSchema(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Register("broken", []byte(`{not json`))
	assert.Error(t, err)
}
