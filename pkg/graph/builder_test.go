package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/tabular"
)

func TestBuildMergesEdgesAndAttributes(t *testing.T) {
	edges := []tabular.Row{
		{"source": "a", "target": "b"},
		{"source": "b", "target": "c"},
	}
	attrs := []tabular.Row{
		{"user_name": "a", "in_joy": "5"},
		{"user_name": "b"},
	}

	res := Build(edges, attrs, "")
	g := res.Graph

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "a", g.Nodes[0].ID)
	assert.Equal(t, "b", g.Nodes[1].ID)
	assert.Equal(t, "c", g.Nodes[2].ID)

	assert.Equal(t, 5.0, g.Nodes[0].EmotionIn.Get(model.ChannelJoy))
	assert.Equal(t, 0.0, g.Nodes[0].EmotionIn.Get(model.ChannelFear))
	assert.True(t, g.Nodes[1].EmotionIn.IsZero())
	assert.True(t, g.Nodes[2].EmotionIn.IsZero())

	assert.Equal(t, []model.Link{{Source: "a", Target: "b"}, {Source: "b", Target: "c"}}, g.Links)

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, MissingAttributes, res.Diagnostics[0].Kind)
	assert.Equal(t, "c", res.Diagnostics[0].NodeID)
}

func TestBuildSkipsMalformedEdgeRows(t *testing.T) {
	edges := []tabular.Row{
		{"source": " a ", "target": "b "},
		{"source": "", "target": "x"},
		{"source": "y", "target": "   "},
		{"target": "z"},
		{"source": "b", "target": "a"},
	}

	res := Build(edges, nil, "user_name")
	g := res.Graph

	require.Len(t, g.Nodes, 2, "skipped rows contribute no nodes")
	assert.Equal(t, []model.Link{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}}, g.Links,
		"ids are trimmed and reverse links are kept")

	rowErrors := 0
	for _, d := range res.Diagnostics {
		if d.Kind == DataRowError {
			rowErrors++
			assert.Equal(t, "edges", d.File)
		}
	}
	assert.Equal(t, 3, rowErrors)
}

func TestBuildKeepsDuplicateLinks(t *testing.T) {
	edges := []tabular.Row{
		{"source": "a", "target": "b"},
		{"source": "a", "target": "b"},
	}
	res := Build(edges, nil, "")
	assert.Len(t, res.Graph.Links, 2)
	assert.Len(t, res.Graph.Nodes, 2)
}

func TestBuildAttributeKeyFallbacks(t *testing.T) {
	edges := []tabular.Row{{"source": "a", "target": "b"}}
	attrs := []tabular.Row{
		{"id": " a ", "in_anger": "2", "cluster": "c1"},
		{"ID": "b", "in_anticip": "0.5"},
		{"user_name": "", "id": "ignored"},
	}

	res := Build(edges, attrs, "user_name")
	a, _ := res.Graph.Node("a")
	b, _ := res.Graph.Node("b")

	assert.Equal(t, 2.0, a.EmotionIn.Get(model.ChannelAnger))
	assert.Equal(t, "c1", a.Cluster)
	assert.Equal(t, 0.5, b.EmotionIn.Get(model.ChannelAnticipation))

	require.Len(t, res.Diagnostics, 1, "present but empty id column is not a fallback case")
	assert.Equal(t, DataRowError, res.Diagnostics[0].Kind)
	assert.Equal(t, "attributes", res.Diagnostics[0].File)
	assert.Equal(t, 2, res.Diagnostics[0].Row)
}

func TestBuildNonNumericChannelsAreZero(t *testing.T) {
	edges := []tabular.Row{{"source": "a", "target": "a"}}
	attrs := []tabular.Row{{"user_name": "a", "in_fear": "lots", "in_trust": "NaN", "in_joy": "Inf", "in_sadness": " 3 "}}

	res := Build(edges, attrs, "")
	a, _ := res.Graph.Node("a")

	assert.Equal(t, 0.0, a.EmotionIn.Get(model.ChannelFear))
	assert.Equal(t, 0.0, a.EmotionIn.Get(model.ChannelTrust))
	assert.Equal(t, 0.0, a.EmotionIn.Get(model.ChannelJoy))
	assert.Equal(t, 3.0, a.EmotionIn.Get(model.ChannelSadness))
	assert.Len(t, res.Graph.Links, 1, "self links are kept")
}

func TestBuildIsDeterministic(t *testing.T) {
	edges := []tabular.Row{
		{"source": "u3", "target": "u1"},
		{"source": "u1", "target": "u2"},
		{"source": "u2", "target": "u3"},
		{"source": "u4", "target": "u1"},
	}
	attrs := []tabular.Row{
		{"user_name": "u1", "in_joy": "1", "in_fear": "0.25"},
		{"user_name": "u4", "in_disgust": "7"},
	}

	first, err := json.Marshal(Build(edges, attrs, "").Graph)
	require.NoError(t, err)
	second, err := json.Marshal(Build(edges, attrs, "").Graph)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestBuildNoDanglingLinks(t *testing.T) {
	edges := []tabular.Row{
		{"source": "a", "target": "b"},
		{"source": "", "target": "b"},
		{"source": "c", "target": ""},
		{"source": "d", "target": "e"},
	}
	res := Build(edges, nil, "")
	for _, l := range res.Graph.Links {
		assert.True(t, res.Graph.HasNode(l.Source), l.Source)
		assert.True(t, res.Graph.HasNode(l.Target), l.Target)
	}
}
