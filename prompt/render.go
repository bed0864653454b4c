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

package prompt

import (
	"fmt"
	"strconv"
	"strings"
)

// Render substitutes a context payload into a template body. Missing
// paths render as empty strings, never errors; only malformed block
// nesting fails. A body with no tags passes through unchanged.
func Render(body string, context map[string]interface{}) (string, error) {
	nodes, err := Parse(body)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	renderNodes(&sb, nodes, newScope(context))
	return sb.String(), nil
}

// RenderTemplate renders a template's system and user prompts against
// the same context.
func RenderTemplate(t *Template, context map[string]interface{}) (system, user string, err error) {
	if t.SystemPrompt != "" {
		system, err = Render(t.SystemPrompt, context)
		if err != nil {
			return "", "", fmt.Errorf("system prompt: %w", err)
		}
	}
	user, err = Render(t.UserPrompt, context)
	if err != nil {
		return "", "", fmt.Errorf("user prompt: %w", err)
	}
	return system, user, nil
}

// scope is the lookup environment for one tree level. Iteration pushes a
// new scope carrying the current element and index.
type scope struct {
	root    map[string]interface{}
	current interface{}
	index   int
	inLoop  bool
}

func newScope(root map[string]interface{}) *scope {
	return &scope{root: root, index: -1}
}

func (s *scope) child(element interface{}, index int) *scope {
	return &scope{root: s.root, current: element, index: index, inLoop: true}
}

func renderNodes(sb *strings.Builder, nodes []*node, sc *scope) {
	for _, n := range nodes {
		switch n.kind {
		case nodeText:
			sb.WriteString(n.text)

		case nodeVar:
			sb.WriteString(stringify(sc.lookup(n.path)))

		case nodeIf:
			if truthy(sc.lookup(n.path)) {
				renderNodes(sb, n.children, sc)
			}

		case nodeEach:
			items, ok := sc.lookup(n.path).([]interface{})
			if !ok {
				continue
			}
			for i, item := range items {
				renderNodes(sb, n.children, sc.child(item, i))
			}
		}
	}
}

// lookup resolves a dot path against the scope. Inside a loop, "this",
// "this.<prop>" and "@index" address the current element; everything
// else resolves against the root payload. A missing path yields nil.
func (s *scope) lookup(path string) interface{} {
	if s.inLoop {
		switch {
		case path == "@index":
			return s.index
		case path == "this":
			return s.current
		case strings.HasPrefix(path, "this."):
			return descend(s.current, strings.Split(path[len("this."):], "."))
		}
	}
	return descend(s.root, strings.Split(path, "."))
}

func descend(value interface{}, parts []string) interface{} {
	for _, part := range parts {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}
		value, ok = m[part]
		if !ok {
			return nil
		}
	}
	return value
}

// truthy reports whether a conditional path renders its body: the value
// must stringify to something non-empty other than "false" or "0".
func truthy(v interface{}) bool {
	s := stringify(v)
	return s != "" && s != "false" && s != "0"
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		// JSON numbers decode to float64; render integral values without
		// a fractional part.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}
