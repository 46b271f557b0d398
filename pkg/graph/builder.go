// Package graph merges an edge list and a per-user attribute table into a
// model.Graph, and indexes built graphs for lookups and structure queries.
package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/tabular"
)

// DefaultIDKey is the attribute column identifying a user
const DefaultIDKey = "user_name"

// fallbackIDKeys are tried when the configured id column is absent from a row
var fallbackIDKeys = []string{"id", "ID"}

// DiagnosticKind classifies a recovered data problem
type DiagnosticKind string

const (
	// DataRowError is a malformed row that was skipped
	DataRowError DiagnosticKind = "DataRowError"
	// MissingAttributes is a node created with a zero emotion vector
	MissingAttributes DiagnosticKind = "MissingAttributes"
)

// Diagnostic describes a row or node the builder had to recover from
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	File    string         `json:"file"`
	Row     int            `json:"row"`
	NodeID  string         `json:"nodeId,omitempty"`
	Message string         `json:"message"`
}

func (d Diagnostic) Error() string {
	if d.Row >= 0 {
		return fmt.Sprintf("%s: %s row %d: %s", d.Kind, d.File, d.Row, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Result is the outcome of a build
type Result struct {
	Graph       *model.Graph
	Diagnostics []Diagnostic
}

// Build merges edge rows and attribute rows into a graph.
//
// Nodes appear in the order their id is first seen as a source or target of a kept
// edge; links keep the input order of the kept edge rows. Malformed rows are dropped
// with a diagnostic and never fail the build. A node without an attribute row gets an
// all-zero emotion vector.
func Build(edgeRows, attributeRows []tabular.Row, idKey string) *Result {
	log := logging.New("graph")
	if idKey == "" {
		idKey = DefaultIDKey
	}

	result := &Result{Graph: model.NewGraph("")}
	attrs := indexAttributes(attributeRows, idKey, result)

	addNode := func(id string) {
		if result.Graph.HasNode(id) {
			return
		}
		row, found := attrs[id]
		result.Graph.AddNode(newNode(id, row))
		if !found {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Kind:    MissingAttributes,
				File:    "attributes",
				Row:     -1,
				NodeID:  id,
				Message: fmt.Sprintf("node %s not found in attributes", id),
			})
		}
	}

	for i, row := range edgeRows {
		source := strings.TrimSpace(row["source"])
		target := strings.TrimSpace(row["target"])
		if source == "" || target == "" {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Kind:    DataRowError,
				File:    "edges",
				Row:     i,
				Message: fmt.Sprintf("invalid link %q -> %q", row["source"], row["target"]),
			})
			continue
		}

		addNode(source)
		addNode(target)
		result.Graph.AddLink(model.Link{Source: source, Target: target})
	}

	for _, d := range result.Diagnostics {
		log.Warn(d.Message, "kind", string(d.Kind), "file", d.File, "row", d.Row)
	}
	log.Info("graph built",
		"nodes", len(result.Graph.Nodes),
		"links", len(result.Graph.Links),
		"diagnostics", len(result.Diagnostics))

	return result
}

// indexAttributes keys attribute rows by trimmed id. Later rows win on duplicate ids.
func indexAttributes(rows []tabular.Row, idKey string, result *Result) map[string]tabular.Row {
	keys := append([]string{idKey}, fallbackIDKeys...)
	attrs := make(map[string]tabular.Row, len(rows))

	for i, row := range rows {
		raw, _ := row.Get(keys...)
		id := strings.TrimSpace(raw)
		if id == "" {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Kind:    DataRowError,
				File:    "attributes",
				Row:     i,
				Message: fmt.Sprintf("attribute row has no valid %s", idKey),
			})
			continue
		}
		attrs[id] = row
	}
	return attrs
}

func newNode(id string, attrs tabular.Row) *model.Node {
	node := &model.Node{ID: id}
	if attrs == nil {
		return node
	}
	node.Cluster = strings.TrimSpace(attrs["cluster"])
	for i := 0; i < model.NumEmotions; i++ {
		node.EmotionIn[i] = parseChannel(attrs[model.AttributeColumn(i)])
	}
	return node
}

// parseChannel coerces a cell to a number; anything unparseable or non-finite is 0
func parseChannel(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
