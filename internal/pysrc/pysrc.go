// Package pysrc analyzes Python module sources with Tree-sitter. It exposes
// the exact byte spans of top-level function definitions so one function's
// body can be replaced while every other byte of the file stays untouched,
// and it extracts the `upstream = {...}` declarations that pipelines with
// extract_upstream keep inside their task sources.
package pysrc

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// FunctionNotFoundError reports that a named function no longer exists in a
// module. It indicates the on-disk source has drifted from the loaded
// specification, so callers surface it instead of swallowing it.
type FunctionNotFoundError struct {
	Module   string
	Function string
}

// Error implements the error interface.
func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function %q not found in module %s", e.Function, e.Module)
}

// Function describes one top-level function definition. Spans are byte
// offsets into the source the function was parsed from; Def covers the whole
// definition including decorators, Body covers the statements under the def
// line.
type Function struct {
	Name      string
	DefStart  uint32
	DefEnd    uint32
	BodyStart uint32
	BodyEnd   uint32
	// BodyCol is the column of the body's first statement, i.e. the
	// indentation depth every body line is written at.
	BodyCol uint32
}

// Analyzer wraps a Tree-sitter parser configured for Python. It is not safe
// for concurrent use; the contents layer issues one request at a time.
type Analyzer struct {
	parser *sitter.Parser
}

// NewAnalyzer creates a Python source analyzer.
func NewAnalyzer() *Analyzer {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Analyzer{parser: parser}
}

// Functions parses src and returns its top-level function definitions in
// source order. Nested functions and methods are not included; function
// tasks are always module-level defs.
func (a *Analyzer) Functions(ctx context.Context, src []byte) ([]Function, error) {
	tree, err := a.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing python source: %w", err)
	}
	defer tree.Close()

	var funcs []Function
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			if f, ok := functionFromDef(src, child, child); ok {
				funcs = append(funcs, f)
			}
		case "decorated_definition":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				inner := child.NamedChild(j)
				if inner.Type() == "function_definition" {
					if f, ok := functionFromDef(src, child, inner); ok {
						funcs = append(funcs, f)
					}
				}
			}
		}
	}
	return funcs, nil
}

// functionFromDef builds a Function from a function_definition node. outer
// differs from def for decorated definitions, extending the span to cover
// the decorators.
func functionFromDef(src []byte, outer, def *sitter.Node) (Function, bool) {
	nameNode := def.ChildByFieldName("name")
	bodyNode := def.ChildByFieldName("body")
	if nameNode == nil || bodyNode == nil {
		return Function{}, false
	}
	return Function{
		Name:      string(src[nameNode.StartByte():nameNode.EndByte()]),
		DefStart:  outer.StartByte(),
		DefEnd:    outer.EndByte(),
		BodyStart: bodyNode.StartByte(),
		BodyEnd:   bodyNode.EndByte(),
		BodyCol:   bodyNode.StartPoint().Column,
	}, true
}

// Lookup returns the function with the given name.
func Lookup(funcs []Function, name string) (Function, bool) {
	for _, f := range funcs {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// Body returns the function's body text with its indentation removed, ready
// to be shown as notebook source.
func (f Function) Body(src []byte) string {
	text := string(src[f.BodyStart:f.BodyEnd])
	indent := strings.Repeat(" ", int(f.BodyCol))

	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = strings.TrimPrefix(lines[i], indent)
	}
	return strings.Join(lines, "\n")
}

// ReplaceBody returns a copy of src where the named function's body is
// replaced with newBody (plain, unindented text). Every byte outside the
// body span is preserved verbatim.
func (a *Analyzer) ReplaceBody(ctx context.Context, src []byte, module, name, newBody string) ([]byte, error) {
	funcs, err := a.Functions(ctx, src)
	if err != nil {
		return nil, err
	}
	f, ok := Lookup(funcs, name)
	if !ok {
		return nil, &FunctionNotFoundError{Module: module, Function: name}
	}

	indent := strings.Repeat(" ", int(f.BodyCol))
	lines := strings.Split(strings.TrimRight(newBody, "\n"), "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = indent + lines[i]
		}
	}
	indented := strings.Join(lines, "\n")

	out := make([]byte, 0, len(src)-int(f.BodyEnd-f.BodyStart)+len(indented))
	out = append(out, src[:f.BodyStart]...)
	out = append(out, indented...)
	out = append(out, src[f.BodyEnd:]...)
	return out, nil
}
