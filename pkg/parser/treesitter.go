// Copyright 2025 KrakLabs
//
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
//
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TreeSitterParser walks a tree-sitter AST for one language, ported from
// the teacher's parser_typescript.go pattern of ChildByFieldName-driven
// walks and StartPoint/EndPoint line extraction.
type TreeSitterParser struct {
	lang     string
	sitterLn *sitter.Language
}

func languageFor(lang string) (*sitter.Language, error) {
	switch lang {
	case "python":
		return python.GetLanguage(), nil
	case "javascript":
		return javascript.GetLanguage(), nil
	case "typescript":
		return typescript.GetLanguage(), nil
	case "html":
		return html.GetLanguage(), nil
	case "css":
		return css.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("no tree-sitter grammar for %q", lang)
	}
}

// NewTreeSitterParser builds a structural parser for one of the languages
// the pack's grammars cover; python, javascript, typescript, html, css.
func NewTreeSitterParser(lang string) (*TreeSitterParser, error) {
	ln, err := languageFor(lang)
	if err != nil {
		return nil, err
	}
	return &TreeSitterParser{lang: lang, sitterLn: ln}, nil
}

func (p *TreeSitterParser) Language() string { return p.lang }

func (p *TreeSitterParser) Parse(content []byte, filePath string) ([]Symbol, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(p.sitterLn)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", filePath, err)
	}
	root := tree.RootNode()

	switch p.lang {
	case "python":
		return walkPythonSymbols(root, content), nil
	case "javascript", "typescript":
		return walkTSFamilySymbols(root, content), nil
	case "html":
		return walkMarkupSymbols(root, content, "element"), nil
	case "css":
		return walkMarkupSymbols(root, content, "rule_set"), nil
	default:
		return nil, fmt.Errorf("unhandled language %q", p.lang)
	}
}

func nodeText(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(content)
}

// walkPythonSymbols extracts top-level function_definition and
// class_definition nodes, and methods nested in a class body, matching the
// spec's module/class/function granularity for Python (§4.D).
func walkPythonSymbols(root *sitter.Node, content []byte) []Symbol {
	var symbols []Symbol
	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()

	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "function_definition":
				if depth == 0 {
					symbols = append(symbols, pythonFunctionSymbol(child, content, KindFunction))
				}
			case "class_definition":
				if depth == 0 {
					symbols = append(symbols, pythonClassSymbol(child, content))
				}
			default:
				if depth == 0 {
					walk(child, depth)
				}
			}
		}
	}
	walk(root, 0)
	return symbols
}

func pythonFunctionSymbol(n *sitter.Node, content []byte, kind Kind) Symbol {
	name := nodeText(n.ChildByFieldName("name"), content)
	start := n.StartPoint()
	end := n.EndPoint()
	return Symbol{
		Name:      name,
		Kind:      kind,
		StartLine: int(start.Row) + 1,
		EndLine:   int(end.Row) + 1,
		Docstring: extractPythonDocstring(n, content),
	}
}

func pythonClassSymbol(n *sitter.Node, content []byte) Symbol {
	name := nodeText(n.ChildByFieldName("name"), content)
	start := n.StartPoint()
	end := n.EndPoint()
	sym := Symbol{
		Name:      name,
		Kind:      KindClass,
		StartLine: int(start.Row) + 1,
		EndLine:   int(end.Row) + 1,
		Docstring: extractPythonDocstring(n, content),
		Inherits:  extractPythonBases(n, content),
	}
	body := n.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			m := body.Child(i)
			if m != nil && m.Type() == "function_definition" {
				mStart := m.StartPoint()
				mEnd := m.EndPoint()
				sym.Methods = append(sym.Methods, Method{
					Name:      nodeText(m.ChildByFieldName("name"), content),
					StartLine: int(mStart.Row) + 1,
					EndLine:   int(mEnd.Row) + 1,
				})
			}
		}
	}
	return sym
}

func extractPythonDocstring(n *sitter.Node, content []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.ChildCount() == 0 {
		return ""
	}
	first := body.Child(0)
	if first == nil || first.Type() != "expression_statement" {
		return ""
	}
	if first.ChildCount() == 0 {
		return ""
	}
	str := first.Child(0)
	if str == nil || str.Type() != "string" {
		return ""
	}
	return strings.Trim(nodeText(str, content), "\"' \t\r\n")
}

func extractPythonBases(n *sitter.Node, content []byte) []string {
	args := n.ChildByFieldName("superclasses")
	if args == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(args.ChildCount()); i++ {
		c := args.Child(i)
		if c != nil && c.Type() == "identifier" {
			out = append(out, nodeText(c, content))
		}
	}
	return out
}

// walkTSFamilySymbols mirrors parser_typescript.go's walkTSFunctions: it
// recognizes function_declaration, class_declaration, method_definition,
// and const/let arrow-function assignments.
func walkTSFamilySymbols(root *sitter.Node, content []byte) []Symbol {
	var symbols []Symbol

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "function_declaration":
				symbols = append(symbols, tsFunctionSymbol(child, content))
			case "class_declaration":
				symbols = append(symbols, tsClassSymbol(child, content))
			case "lexical_declaration", "variable_declaration":
				if sym, ok := tsArrowAssignmentSymbol(child, content); ok {
					symbols = append(symbols, sym)
				}
			default:
				walk(child)
			}
		}
	}
	walk(root)
	return symbols
}

func tsFunctionSymbol(n *sitter.Node, content []byte) Symbol {
	start, end := n.StartPoint(), n.EndPoint()
	return Symbol{
		Name:      nodeText(n.ChildByFieldName("name"), content),
		Kind:      KindFunction,
		StartLine: int(start.Row) + 1,
		EndLine:   int(end.Row) + 1,
	}
}

func tsClassSymbol(n *sitter.Node, content []byte) Symbol {
	start, end := n.StartPoint(), n.EndPoint()
	sym := Symbol{
		Name:      nodeText(n.ChildByFieldName("name"), content),
		Kind:      KindClass,
		StartLine: int(start.Row) + 1,
		EndLine:   int(end.Row) + 1,
	}
	if heritage := n.ChildByFieldName("heritage"); heritage != nil {
		sym.Inherits = append(sym.Inherits, strings.TrimSpace(nodeText(heritage, content)))
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return sym
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		m := body.Child(i)
		if m == nil || m.Type() != "method_definition" {
			continue
		}
		mStart, mEnd := m.StartPoint(), m.EndPoint()
		sym.Methods = append(sym.Methods, Method{
			Name:      nodeText(m.ChildByFieldName("name"), content),
			StartLine: int(mStart.Row) + 1,
			EndLine:   int(mEnd.Row) + 1,
		})
	}
	return sym
}

func tsArrowAssignmentSymbol(n *sitter.Node, content []byte) (Symbol, bool) {
	for i := 0; i < int(n.ChildCount()); i++ {
		decl := n.Child(i)
		if decl == nil || decl.Type() != "variable_declarator" {
			continue
		}
		value := decl.ChildByFieldName("value")
		if value == nil {
			continue
		}
		if value.Type() != "arrow_function" && value.Type() != "function_expression" {
			continue
		}
		start, end := decl.StartPoint(), decl.EndPoint()
		return Symbol{
			Name:      nodeText(decl.ChildByFieldName("name"), content),
			Kind:      KindArrowFunction,
			StartLine: int(start.Row) + 1,
			EndLine:   int(end.Row) + 1,
		}, true
	}
	return Symbol{}, false
}

// walkMarkupSymbols extracts top-level elements/rule sets for HTML and CSS,
// named by tag or selector text since neither grammar has a "name" field.
func walkMarkupSymbols(root *sitter.Node, content []byte, nodeType string) []Symbol {
	var symbols []Symbol
	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		if n == nil || n.Type() != nodeType {
			continue
		}
		start, end := n.StartPoint(), n.EndPoint()
		name := firstLine(nodeText(n, content))
		symbols = append(symbols, Symbol{
			Name:      name,
			Kind:      KindSemantic,
			StartLine: int(start.Row) + 1,
			EndLine:   int(end.Row) + 1,
		})
	}
	return symbols
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
