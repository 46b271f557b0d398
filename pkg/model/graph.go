package model

// Graph is a snapshot of one network: nodes in first-seen order and links in input order.
// It is the common data model shared by the builder, the animation and the web layer.
// A Graph is not mutated after it has been handed to the view controller.
type Graph struct {
	Network string  `json:"network,omitempty"`
	Nodes   []*Node `json:"nodes"`
	Links   []Link  `json:"links"`

	index map[string]int
}

// NewGraph creates a new empty graph.
func NewGraph(network string) *Graph {
	return &Graph{
		Network: network,
		Nodes:   make([]*Node, 0),
		Links:   make([]Link, 0),
		index:   make(map[string]int),
	}
}

// AddNode appends a node. It returns false and leaves the graph unchanged if a node
// with the same ID already exists.
func (g *Graph) AddNode(node *Node) bool {
	if g.index == nil {
		g.index = make(map[string]int)
	}
	if _, exists := g.index[node.ID]; exists {
		return false
	}
	g.index[node.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, node)
	return true
}

// AddLink appends a link. Links whose endpoints are not both in the graph are rejected.
func (g *Graph) AddLink(link Link) bool {
	if !g.HasNode(link.Source) || !g.HasNode(link.Target) {
		return false
	}
	g.Links = append(g.Links, link)
	return true
}

// Node returns a node by ID
func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.Nodes[i], true
}

// HasNode reports whether id is a node of the graph
func (g *Graph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// NodeIndex returns the position of a node in Nodes, or -1
func (g *Graph) NodeIndex(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	return -1
}

// Empty reports whether the graph has no nodes
func (g *Graph) Empty() bool {
	return g == nil || len(g.Nodes) == 0
}
