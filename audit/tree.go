package audit

import (
	"fmt"
	"io"
	"strings"
)

type Node struct {
	Span     *Span   `json:"span"`
	Children []*Node `json:"children,omitempty"`
}

// BuildTree arranges spans by their parent relation. Spans whose parent is not part of the given set are
// returned as roots. Siblings keep the order of the input.
func BuildTree(spans []*Span) []*Node {
	nodes := make(map[string]*Node, len(spans))
	for _, s := range spans {
		nodes[s.ID] = &Node{Span: s}
	}

	var roots []*Node
	for _, s := range spans {
		n := nodes[s.ID]

		if parent, ok := nodes[s.ParentSpanID]; ok && s.ParentSpanID != "" {
			parent.Children = append(parent.Children, n)
		} else {
			roots = append(roots, n)
		}
	}

	return roots
}

// PrintTree writes an indented rendering of the span tree.
func PrintTree(w io.Writer, roots []*Node) error {
	for _, n := range roots {
		if err := printNode(w, n, 0); err != nil {
			return err
		}
	}

	return nil
}

func printNode(w io.Writer, n *Node, indent int) error {
	s := n.Span

	resource := s.ResourceName
	if resource == "" {
		resource = s.ResourceID
	}

	var attrs []string
	for _, k := range []string{AttrStateOld, AttrStateNew, AttrMarkingOld, AttrMarkingNew, AttrGeneration} {
		if v, ok := s.Attributes[k]; ok {
			attrs = append(attrs, fmt.Sprintf("%s=%v", k, v))
		}
	}

	if _, err := fmt.Fprintf(w, "%s%s %s %s [%s] %s %s\n",
		strings.Repeat("  ", indent),
		s.StartedAt.Format("15:04:05.000"),
		s.Operation,
		s.ResourceType,
		s.State,
		resource,
		strings.Join(attrs, " "),
	); err != nil {
		return err
	}

	for _, c := range n.Children {
		if err := printNode(w, c, indent+1); err != nil {
			return err
		}
	}

	return nil
}
