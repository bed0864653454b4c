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
	"strings"
)

// The template grammar:
//
//	{{path.to.value}}       variable
//	{{#if path}}...{{/if}}  conditional block
//	{{#each path}}...{{/each}} iteration block, body sees this/@index
//
// Templates are parsed into a block tree before evaluation. Evaluating a
// tree instead of doing sequential text substitution guarantees a
// variable inside a conditional body can never corrupt the block tags
// that wrap it.

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeVar
	nodeIf
	nodeEach
)

// node is one element of a parsed template tree. Text nodes carry raw
// text, variable nodes a dot path, and block nodes a path plus children.
type node struct {
	kind     nodeKind
	text     string
	path     string
	children []*node
}

const (
	tagOpen  = "{{"
	tagClose = "}}"
)

// Parse builds the block tree for a template body. Malformed block
// nesting (unclosed or mismatched tags) is an error: a prompt silently
// rendered with a half-open conditional would be worse than failing.
func Parse(body string) ([]*node, error) {
	root := &node{kind: nodeIf}
	stack := []*node{root}
	rest := body

	for {
		top := stack[len(stack)-1]

		open := strings.Index(rest, tagOpen)
		if open < 0 {
			if rest != "" {
				top.children = append(top.children, &node{kind: nodeText, text: rest})
			}
			break
		}

		if open > 0 {
			top.children = append(top.children, &node{kind: nodeText, text: rest[:open]})
		}

		end := strings.Index(rest[open:], tagClose)
		if end < 0 {
			// An unterminated tag is treated as literal text.
			top.children = append(top.children, &node{kind: nodeText, text: rest[open:]})
			break
		}

		tag := strings.TrimSpace(rest[open+len(tagOpen) : open+end])
		rest = rest[open+end+len(tagClose):]

		switch {
		case strings.HasPrefix(tag, "#if "):
			n := &node{kind: nodeIf, path: strings.TrimSpace(tag[len("#if "):])}
			top.children = append(top.children, n)
			stack = append(stack, n)

		case strings.HasPrefix(tag, "#each "):
			n := &node{kind: nodeEach, path: strings.TrimSpace(tag[len("#each "):])}
			top.children = append(top.children, n)
			stack = append(stack, n)

		case tag == "/if":
			if len(stack) < 2 || top.kind != nodeIf {
				return nil, fmt.Errorf("unexpected {{/if}} in template")
			}
			stack = stack[:len(stack)-1]

		case tag == "/each":
			if len(stack) < 2 || top.kind != nodeEach {
				return nil, fmt.Errorf("unexpected {{/each}} in template")
			}
			stack = stack[:len(stack)-1]

		default:
			top.children = append(top.children, &node{kind: nodeVar, path: tag})
		}
	}

	if len(stack) != 1 {
		unclosed := stack[len(stack)-1]
		kind := "if"
		if unclosed.kind == nodeEach {
			kind = "each"
		}
		return nil, fmt.Errorf("unclosed {{#%s %s}} block in template", kind, unclosed.path)
	}
	return root.children, nil
}
