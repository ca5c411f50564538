package pm

// Key builds the resolution key for a dependency: name@constraint. The
// constraint is part of the identity on purpose: the same name can be
// resolved independently under different constraints when scopes disagree.
func Key(name, constraint string) string {
	if constraint == "" {
		constraint = WildcardConstraint
	}
	return name + "@" + constraint
}

// GraphNode is one resolved package in a dependency graph, together with the
// resolution keys of its own dependencies.
type GraphNode struct {
	Package      *ResolvedPackage
	Dependencies []string // resolution keys of direct dependencies
}

// Graph is the result of resolving a manifest: a mapping from resolution key
// to node. Insertion order is preserved for deterministic iteration.
// Graph is not safe for concurrent mutation.
type Graph struct {
	Root  string // root project name
	nodes map[string]*GraphNode
	order []string
}

// NewGraph creates an empty graph for the named root project.
func NewGraph(root string) *Graph {
	return &Graph{Root: root, nodes: make(map[string]*GraphNode)}
}

// Add inserts a resolved package under the given key. If the key is already
// present the existing node is returned unchanged; resolution guarantees
// at most one package per key.
func (g *Graph) Add(key string, pkg *ResolvedPackage) *GraphNode {
	if n, ok := g.nodes[key]; ok {
		return n
	}
	n := &GraphNode{Package: pkg}
	g.nodes[key] = n
	g.order = append(g.order, key)
	return n
}

// AddDependency records that parent's resolution depends on child's. Both
// keys should already exist; unknown parents are ignored.
func (g *Graph) AddDependency(parent, child string) {
	n, ok := g.nodes[parent]
	if !ok {
		return
	}
	for _, k := range n.Dependencies {
		if k == child {
			return
		}
	}
	n.Dependencies = append(n.Dependencies, child)
}

// Node returns the node for a resolution key.
func (g *Graph) Node(key string) (*GraphNode, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Keys returns all resolution keys in insertion order.
func (g *Graph) Keys() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Packages returns all resolved packages in insertion order.
func (g *Graph) Packages() []*ResolvedPackage {
	out := make([]*ResolvedPackage, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.nodes[k].Package)
	}
	return out
}

// Len returns the number of resolved packages in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Dependents returns the resolution keys that depend on the given key.
// It is derived on demand from the dependencies map rather than maintained
// incrementally; no core algorithm consumes it.
func (g *Graph) Dependents(key string) []string {
	var out []string
	for _, k := range g.order {
		for _, dep := range g.nodes[k].Dependencies {
			if dep == key {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
