package view

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ritzau/emotion-graph/pkg/animation"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/style"
)

// NodeInfo is what the user sees after clicking a node
type NodeInfo struct {
	ID        string          `json:"id"`
	Cluster   string          `json:"cluster,omitempty"`
	EmotionIn model.Emotions  `json:"emotionIn"`
	InDegree  int             `json:"inDegree"`
	OutDegree int             `json:"outDegree"`
	Neighbors []string        `json:"neighbors"`
	Position  *model.Position `json:"position,omitempty"`
	Style     style.NodeStyle `json:"style"`
}

// Inspect returns the details of a node and focuses it
func (c *Controller) Inspect(id string) (*NodeInfo, error) {
	id = strings.TrimSpace(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.graph.Node(id)
	if !ok {
		return nil, c.focusLocked(id)
	}
	if err := c.focusLocked(id); err != nil {
		return nil, err
	}

	in, out := c.index.Degree(id)
	info := &NodeInfo{
		ID:        node.ID,
		Cluster:   node.Cluster,
		EmotionIn: node.EmotionIn,
		InDegree:  in,
		OutDegree: out,
		Neighbors: c.index.Neighbors(id),
		Style:     style.Node(node.EmotionIn, c.flashingLocked(id)),
	}
	if info.Neighbors == nil {
		info.Neighbors = []string{}
	}
	if p, ok := c.positions[id]; ok {
		info.Position = &p
	}
	return info, nil
}

// NodeView is a node with its current style
type NodeView struct {
	*model.Node
	Style    style.NodeStyle `json:"style"`
	Position *model.Position `json:"position,omitempty"`
}

// LinkView is a link with its current visual state and style
type LinkView struct {
	model.Link
	style.LinkVisual
	Style style.LinkStyle `json:"style"`
}

// Snapshot is everything the renderer needs to draw the graph from scratch
type Snapshot struct {
	Network string              `json:"network"`
	Version uint64              `json:"version"`
	Focused string              `json:"focused,omitempty"`
	Nodes   []NodeView          `json:"nodes"`
	Links   []LinkView          `json:"links"`
	Legend  []style.LegendEntry `json:"legend"`
	Frame   animation.Frame     `json:"frame"`
	Result  *PropagationResult  `json:"result,omitempty"`
}

// Snapshot returns an immutable copy of the live graph with styles applied
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame := c.scheduler.Snapshot()
	visual := make(map[int]style.LinkVisual, len(frame.Links))
	for _, lf := range frame.Links {
		visual[lf.Index] = lf.LinkVisual
	}

	snap := Snapshot{
		Network: c.network,
		Version: c.version,
		Focused: c.focused,
		Nodes:   make([]NodeView, 0, len(c.graph.Nodes)),
		Links:   make([]LinkView, 0, len(c.graph.Links)),
		Legend:  style.Legend(),
		Frame:   frame,
		Result:  c.lastResult,
	}
	for _, n := range c.graph.Nodes {
		node := *n
		view := NodeView{Node: &node, Style: style.Node(n.EmotionIn, c.flashingLocked(n.ID))}
		if p, ok := c.positions[n.ID]; ok {
			view.Position = &p
		}
		snap.Nodes = append(snap.Nodes, view)
	}
	for i, l := range c.graph.Links {
		v := visual[i]
		snap.Links = append(snap.Links, LinkView{Link: l, LinkVisual: v, Style: style.Link(v)})
	}
	return snap
}

// NodeStyle returns the current style of one node
func (c *Controller) NodeStyle(id string) (style.NodeStyle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.graph.Node(id)
	if !ok {
		return style.NodeStyle{}, errors.Wrapf(ErrNotFound, "%q", id)
	}
	return style.Node(node.EmotionIn, c.flashingLocked(id)), nil
}

// Animation returns the state of the current propagation animation
func (c *Controller) Animation() animation.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler.Snapshot()
}

// Graph returns the live graph. It must be treated as read-only.
func (c *Controller) Graph() (string, *model.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network, c.graph
}
