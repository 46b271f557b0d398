// Package output prints colored console reports for the non-web modes.
package output

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/ritzau/emotion-graph/pkg/graph"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/pipeline"
)

const (
	maxListed = 10
	topUsers  = 5
)

// PrintGraphReport prints a summary of a loaded network: sizes, structure, data
// problems and the dominant incoming emotion of its users
func PrintGraphReport(w io.Writer, summary pipeline.Summary, g *model.Graph) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	// Header
	bold.Fprintln(w, "Emotion Graph - Network Report")
	bold.Fprintln(w, "==============================")
	if summary.Network != "" {
		fmt.Fprintf(w, "Network: %s", summary.Network)
		if len(summary.Networks) > 1 {
			fmt.Fprintf(w, " (of %d: %v)", len(summary.Networks), summary.Networks)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Rows: %d edges, %d attributes\n", summary.EdgeRows, summary.AttributeRows)

	if !summary.Ready || g == nil {
		yellow.Fprintln(w, "Both the edges and the attributes file are needed to build the network")
		return
	}

	ix := graph.NewIndex(g)
	fmt.Fprintf(w, "Users: %d\n", len(g.Nodes))
	fmt.Fprintf(w, "Links: %d\n", len(g.Links))
	fmt.Fprintf(w, "Connected components: %d\n", ix.Components())
	fmt.Fprintln(w)

	// Groups of users that can all reach each other
	groups := ix.StronglyConnectedGroups()
	if len(groups) > 0 {
		cyan.Fprintf(w, "MUTUAL GROUPS (%d):\n", len(groups))
		for i, members := range groups {
			if i == maxListed {
				fmt.Fprintf(w, "  … %d more\n", len(groups)-maxListed)
				break
			}
			fmt.Fprintf(w, "  %v\n", members)
		}
		fmt.Fprintln(w)
	}

	// Most connected users
	if len(g.Nodes) > 0 {
		bold.Fprintln(w, "MOST CONNECTED:")
		for _, n := range mostConnected(ix, g, topUsers) {
			in, out := ix.Degree(n.ID)
			fmt.Fprintf(w, "  %-20s in %-4d out %-4d %s\n", n.ID, in, out, dominant(n.EmotionIn))
		}
		fmt.Fprintln(w)
	}

	// Dominant emotions
	bold.Fprintln(w, "DOMINANT EMOTION:")
	counts := dominantCounts(g)
	for _, ch := range model.EmotionChannels {
		if counts[string(ch)] > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", ch, counts[string(ch)])
		}
	}
	if counts["none"] > 0 {
		yellow.Fprintf(w, "  %-14s %d\n", "none", counts["none"])
	}
	fmt.Fprintln(w)

	// Data problems
	if len(summary.Diagnostics) == 0 {
		green.Fprintln(w, "✓ Every row was usable and every user has attributes")
		return
	}
	red.Fprintf(w, "DATA PROBLEMS (%d):\n", len(summary.Diagnostics))
	for i, d := range summary.Diagnostics {
		if i == maxListed {
			fmt.Fprintf(w, "  … %d more\n", len(summary.Diagnostics)-maxListed)
			break
		}
		yellow.Fprintf(w, "  %s\n", d.Kind)
		fmt.Fprintf(w, "    %s\n", d.Message)
	}
}

func mostConnected(ix *graph.Index, g *model.Graph, n int) []*model.Node {
	nodes := append([]*model.Node(nil), g.Nodes...)
	degree := func(node *model.Node) int {
		in, out := ix.Degree(node.ID)
		return in + out
	}
	sort.SliceStable(nodes, func(a, b int) bool { return degree(nodes[a]) > degree(nodes[b]) })
	if len(nodes) > n {
		nodes = nodes[:n]
	}
	return nodes
}

// dominant names the strongest channel, or "none" for an all-zero vector
func dominant(e model.Emotions) string {
	if e.IsZero() {
		return "none"
	}
	best := 0
	for i := range e {
		if e[i] > e[best] {
			best = i
		}
	}
	return string(model.EmotionChannels[best])
}

func dominantCounts(g *model.Graph) map[string]int {
	counts := make(map[string]int)
	for _, n := range g.Nodes {
		counts[dominant(n.EmotionIn)]++
	}
	return counts
}
