// Package dataset holds the uploaded edge and attribute rows and partitions a
// multi-network edge file into the network selected for display.
package dataset

import (
	"strings"
	"sync"

	"github.com/ritzau/emotion-graph/pkg/tabular"
)

// networkKeys are the edge columns naming the network a row belongs to
var networkKeys = []string{"network_id", "networkId"}

// Dataset is the set of rows the user has loaded. It is safe for concurrent use.
type Dataset struct {
	mu         sync.RWMutex
	edges      []tabular.Row
	attributes []tabular.Row
	networks   []string
	selected   string
}

// New creates an empty dataset
func New() *Dataset {
	return &Dataset{}
}

// SetEdges replaces the edge rows, recomputes the network list and selects the first
// network. It returns the network list.
func (d *Dataset) SetEdges(rows []tabular.Row) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.edges = rows
	d.networks = NetworkIDs(rows)
	d.selected = ""
	if len(d.networks) > 0 {
		d.selected = d.networks[0]
	}
	return append([]string(nil), d.networks...)
}

// SetAttributes replaces the attribute rows
func (d *Dataset) SetAttributes(rows []tabular.Row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attributes = rows
}

// Select chooses the network to display. It returns false if the id is unknown.
func (d *Dataset) Select(network string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, n := range d.networks {
		if n == network {
			d.selected = network
			return true
		}
	}
	return false
}

// Selected returns the selected network ("" when the edge file has no network column)
func (d *Dataset) Selected() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected
}

// Networks returns the distinct network ids in first-seen order
func (d *Dataset) Networks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.networks...)
}

// Ready reports whether both files are loaded with at least one row each
func (d *Dataset) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.edges) > 0 && len(d.attributes) > 0
}

// Counts returns the number of edge and attribute rows loaded
func (d *Dataset) Counts() (edges, attributes int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.edges), len(d.attributes)
}

// Current returns the edge rows of the selected network and all attribute rows.
// When the edge file carries no network ids every edge row is returned.
func (d *Dataset) Current() (network string, edges, attributes []tabular.Row) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.networks) == 0 {
		return "", d.edges, d.attributes
	}
	return d.selected, FilterNetwork(d.edges, d.selected), d.attributes
}

// NetworkIDs lists the distinct non-empty network ids in first-seen order
func NetworkIDs(rows []tabular.Row) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, row := range rows {
		id, ok := row.Get(networkKeys...)
		id = strings.TrimSpace(id)
		if !ok || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// FilterNetwork keeps the rows whose network id equals network, preserving order
func FilterNetwork(rows []tabular.Row, network string) []tabular.Row {
	filtered := make([]tabular.Row, 0)
	for _, row := range rows {
		id, _ := row.Get(networkKeys...)
		if strings.TrimSpace(id) == network {
			filtered = append(filtered, row)
		}
	}
	return filtered
}
