package graph

import (
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ritzau/emotion-graph/pkg/model"
)

// pairKey identifies an unordered pair of node ids
type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// Index answers structural questions about a built graph. Gonum node ids are the
// positions of the nodes in model.Graph.Nodes.
type Index struct {
	source *model.Graph
	graph  *simple.DirectedGraph
	pairs  map[pairKey][]int // unordered endpoint pair -> link positions, in link order
	in     []int
	out    []int
}

// NewIndex indexes g. The graph must not change afterwards.
func NewIndex(g *model.Graph) *Index {
	ix := &Index{
		source: g,
		graph:  simple.NewDirectedGraph(),
		pairs:  make(map[pairKey][]int),
		in:     make([]int, len(g.Nodes)),
		out:    make([]int, len(g.Nodes)),
	}

	for i := range g.Nodes {
		ix.graph.AddNode(simple.Node(int64(i)))
	}

	for i, link := range g.Links {
		from := int64(g.NodeIndex(link.Source))
		to := int64(g.NodeIndex(link.Target))
		ix.out[from]++
		ix.in[to]++

		key := newPairKey(link.Source, link.Target)
		ix.pairs[key] = append(ix.pairs[key], i)

		// simple graphs hold neither self loops nor parallel edges
		if from != to && !ix.graph.HasEdgeFromTo(from, to) {
			ix.graph.SetEdge(ix.graph.NewEdge(ix.graph.Node(from), ix.graph.Node(to)))
		}
	}

	return ix
}

// Graph returns the indexed graph
func (ix *Index) Graph() *model.Graph {
	return ix.source
}

// Directed returns the underlying gonum graph
func (ix *Index) Directed() gonum.Directed {
	return ix.graph
}

// FindLink returns the position of the first link joining a and b in either direction
func (ix *Index) FindLink(a, b string) (int, bool) {
	links := ix.pairs[newPairKey(a, b)]
	if len(links) == 0 {
		return -1, false
	}
	return links[0], true
}

// Degree returns the number of incoming and outgoing links of a node, duplicates included
func (ix *Index) Degree(id string) (in, out int) {
	i := ix.source.NodeIndex(id)
	if i < 0 {
		return 0, 0
	}
	return ix.in[i], ix.out[i]
}

// Neighbors returns the distinct nodes linked to id in either direction, in node order
func (ix *Index) Neighbors(id string) []string {
	i := ix.source.NodeIndex(id)
	if i < 0 {
		return nil
	}

	seen := make(map[int64]bool)
	collect := func(nodes gonum.Nodes) {
		for nodes.Next() {
			seen[nodes.Node().ID()] = true
		}
	}
	collect(ix.graph.From(int64(i)))
	collect(ix.graph.To(int64(i)))

	ids := make([]int64, 0, len(seen))
	for nid := range seen {
		ids = append(ids, nid)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	neighbors := make([]string, len(ids))
	for k, nid := range ids {
		neighbors[k] = ix.source.Nodes[nid].ID
	}
	return neighbors
}

// Components returns the number of weakly connected components
func (ix *Index) Components() int {
	if len(ix.source.Nodes) == 0 {
		return 0
	}
	return len(topo.ConnectedComponents(gonum.Undirect{G: ix.graph}))
}

// StronglyConnectedGroups returns the groups of two or more users that can all reach
// each other along link direction. Members are listed in node order; groups are
// ordered by their first member.
func (ix *Index) StronglyConnectedGroups() [][]string {
	var groups [][]string
	for _, scc := range topo.TarjanSCC(ix.graph) {
		// self links are not indexed, so a single node is never a cycle
		if len(scc) < 2 {
			continue
		}
		ids := make([]int64, len(scc))
		for k, n := range scc {
			ids[k] = n.ID()
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		members := make([]string, len(ids))
		for k, nid := range ids {
			members[k] = ix.source.Nodes[nid].ID
		}
		groups = append(groups, members)
	}
	sort.Slice(groups, func(a, b int) bool {
		return ix.source.NodeIndex(groups[a][0]) < ix.source.NodeIndex(groups[b][0])
	})
	return groups
}
