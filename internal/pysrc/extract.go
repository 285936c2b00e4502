package pysrc

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// UpstreamNames returns the dependency names declared by a top-level
// `upstream = ...` assignment in src. The literal may be a dictionary
// (papermill-style `{'clean': None}`), a list, or None. The boolean reports
// whether the assignment exists at all; `upstream = None` counts as declared
// with no dependencies.
func (a *Analyzer) UpstreamNames(ctx context.Context, src []byte) ([]string, bool, error) {
	var names []string
	found, err := a.withAssignment(ctx, src, "upstream", func(value *sitter.Node) {
		switch value.Type() {
		case "dictionary":
			for i := 0; i < int(value.NamedChildCount()); i++ {
				pair := value.NamedChild(i)
				if pair.Type() != "pair" {
					continue
				}
				if key := pair.ChildByFieldName("key"); key != nil {
					if name := stringContent(src, key); name != "" {
						names = append(names, name)
					}
				}
			}
		case "list", "set", "tuple":
			for i := 0; i < int(value.NamedChildCount()); i++ {
				if name := stringContent(src, value.NamedChild(i)); name != "" {
					names = append(names, name)
				}
			}
		}
	})
	if err != nil || !found {
		return nil, false, err
	}
	return names, true, nil
}

// LiteralText returns the raw right-hand-side text of a top-level
// `<name> = ...` assignment, e.g. the product literal of a task that keeps
// its product in the source.
func (a *Analyzer) LiteralText(ctx context.Context, src []byte, name string) (string, bool, error) {
	var text string
	found, err := a.withAssignment(ctx, src, name, func(value *sitter.Node) {
		text = string(src[value.StartByte():value.EndByte()])
	})
	if err != nil || !found {
		return "", false, err
	}
	return text, true, nil
}

// withAssignment parses src, locates the last top-level assignment to name
// and hands its right-hand-side node to fn. The node is only valid while the
// tree is alive, so fn must extract what it needs eagerly.
func (a *Analyzer) withAssignment(ctx context.Context, src []byte, name string, fn func(value *sitter.Node)) (bool, error) {
	tree, err := a.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return false, err
	}
	defer tree.Close()

	var found *sitter.Node
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "expression_statement" {
			continue
		}
		for j := 0; j < int(stmt.NamedChildCount()); j++ {
			assign := stmt.NamedChild(j)
			if assign.Type() != "assignment" {
				continue
			}
			left := assign.ChildByFieldName("left")
			right := assign.ChildByFieldName("right")
			if left == nil || right == nil {
				continue
			}
			if left.Type() == "identifier" && string(src[left.StartByte():left.EndByte()]) == name {
				found = right
			}
		}
	}
	if found == nil {
		return false, nil
	}
	fn(found)
	return true, nil
}

// stringContent returns the text of a Python string literal node without its
// quotes, or "" for non-string nodes.
func stringContent(src []byte, node *sitter.Node) string {
	if node == nil || node.Type() != "string" {
		return ""
	}
	text := string(src[node.StartByte():node.EndByte()])
	text = strings.TrimLeft(text, "rbuRBUf")
	return strings.Trim(text, `'"`)
}
