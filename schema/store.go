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

// Package schema validates action output against named JSON Schema
// documents and repairs invalid output so callers always receive a
// structurally valid payload.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Entry is one loaded schema: the compiled validator plus the decoded
// document, which is kept around for default and property extraction.
type Entry struct {
	Name     string
	Compiled *jsonschema.Schema
	Raw      map[string]interface{}
}

// Properties returns the declared property map, or nil when the schema
// declares none.
func (e *Entry) Properties() map[string]interface{} {
	props, _ := e.Raw["properties"].(map[string]interface{})
	return props
}

// Default returns a property's declared default value, if any.
func (e *Entry) Default(property string) (interface{}, bool) {
	prop, ok := e.Properties()[property].(map[string]interface{})
	if !ok {
		return nil, false
	}
	def, ok := prop["default"]
	return def, ok
}

// Store loads named schemas from a directory, lazily, caching by name.
// A schema named "risk_analysis" lives at <dir>/risk_analysis.json.
type Store struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Entry
}

// NewStore creates a schema store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: make(map[string]*Entry),
	}
}

// Get returns the schema by name, loading and compiling it on first use.
func (s *Store) Get(name string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return entry, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %q: %w", name, err)
	}
	return s.Register(name, raw)
}

// Register compiles and caches a schema document under a name. Used for
// loading and for registering schemas defined in memory.
func (s *Store) Register(name string, raw []byte) (*Entry, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema %q is not valid JSON: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://intentflow.schemas.local/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("failed to add schema %q: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", name, err)
	}

	entry := &Entry{Name: name, Compiled: compiled, Raw: doc}

	s.mu.Lock()
	s.cache[name] = entry
	s.mu.Unlock()
	return entry, nil
}
