// Package export renders resolved dependency graphs to Graphviz DOT and SVG
// for the graph command.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/polypack/polypack/pkg/pm"
)

// Options configures graph rendering.
type Options struct {
	// Detailed includes registry and integrity metadata in node labels.
	// When false, only name@version is shown.
	Detailed bool
}

// ToDOT converts a resolved graph to Graphviz DOT. Nodes are resolution keys;
// a deprecated package gets a dashed grey outline. The resulting DOT string
// can be rendered with [RenderSVG].
func ToDOT(g *pm.Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph deps {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	root := g.Root
	if root == "" {
		root = "project"
	}
	fmt.Fprintf(&buf, "  %q [style=\"rounded,filled,bold\", fillcolor=lightblue];\n", root)

	keys := g.Keys()
	for _, key := range keys {
		n, ok := g.Node(key)
		if !ok {
			continue
		}
		label := fmtLabel(key, n.Package, opts.Detailed)
		attrs := fmtAttrs(n.Package, label)
		fmt.Fprintf(&buf, "  %q [%s];\n", key, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	// Direct dependencies hang off the root; everything else off its parent.
	hasParent := make(map[string]bool, len(keys))
	for _, key := range keys {
		n, _ := g.Node(key)
		for _, child := range n.Dependencies {
			hasParent[child] = true
			fmt.Fprintf(&buf, "  %q -> %q;\n", key, child)
		}
	}
	for _, key := range keys {
		if !hasParent[key] {
			fmt.Fprintf(&buf, "  %q -> %q;\n", root, key)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(key string, p *pm.ResolvedPackage, detailed bool) string {
	label := fmt.Sprintf("%s@%s", p.Name, p.Version)
	if !detailed {
		return label
	}
	parts := []string{label}
	if p.Registry != "" {
		parts = append(parts, "registry: "+p.Registry)
	}
	if p.Integrity != "" {
		parts = append(parts, "integrity: "+p.Integrity)
	}
	parts = append(parts, "key: "+key)
	return strings.Join(parts, "\n")
}

func fmtAttrs(p *pm.ResolvedPackage, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if p.Deprecated != "" {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey", "fontcolor=black")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
