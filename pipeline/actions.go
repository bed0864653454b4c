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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"intentflow/backend/prompt"
)

// DefaultActionTimeout bounds one model invocation when the action does
// not declare its own.
const DefaultActionTimeout = 30 * time.Second

// Action binds a named unit of work to its prompt template and output
// schema.
type Action struct {
	// Name is the actionId callers reference.
	Name string `yaml:"name"`

	// Template is the prompt definition executed for this action.
	Template *prompt.Template `yaml:"template"`

	// OutputSchema names the JSON Schema the result must satisfy.
	// Empty for text-format actions.
	OutputSchema string `yaml:"output_schema"`

	// TimeoutSeconds bounds the provider call (0 = default).
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-invocation deadline for this action.
func (a *Action) Timeout() time.Duration {
	if a.TimeoutSeconds > 0 {
		return time.Duration(a.TimeoutSeconds) * time.Second
	}
	return DefaultActionTimeout
}

// Catalog is the set of known actions, keyed by name.
type Catalog struct {
	mu      sync.RWMutex
	actions map[string]*Action
}

// NewCatalog creates an empty action catalog.
func NewCatalog() *Catalog {
	return &Catalog{actions: make(map[string]*Action)}
}

// Register adds an action definition after validating it.
func (c *Catalog) Register(a *Action) error {
	if a == nil || a.Name == "" {
		return fmt.Errorf("action requires a name")
	}
	if a.Template == nil || a.Template.UserPrompt == "" {
		return fmt.Errorf("action %q requires a template with a user prompt", a.Name)
	}
	if a.Template.OutputFormat == prompt.OutputJSON && a.OutputSchema == "" {
		return fmt.Errorf("action %q declares json output but no output schema", a.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions[a.Name] = a
	return nil
}

// Get returns an action by name.
func (c *Catalog) Get(name string) (*Action, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actions[name]
	return a, ok
}

// Names lists registered action names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.actions))
	for name := range c.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadCatalogFromDir reads every .yaml/.yml action definition in dir.
func LoadCatalogFromDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read action directory: %w", err)
	}

	catalog := NewCatalog()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read action file %s: %w", entry.Name(), err)
		}

		var action Action
		if err := yaml.Unmarshal(raw, &action); err != nil {
			return nil, fmt.Errorf("failed to parse action file %s: %w", entry.Name(), err)
		}
		if err := catalog.Register(&action); err != nil {
			return nil, fmt.Errorf("invalid action in %s: %w", entry.Name(), err)
		}
	}
	return catalog, nil
}
