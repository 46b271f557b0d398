package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmotionsMarshalKeepsChannelOrder(t *testing.T) {
	var e Emotions
	e[7] = 5

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t,
		`{"fear":0,"anger":0,"anticipation":0,"trust":0,"surprise":0,"sadness":0,"disgust":0,"joy":5}`,
		string(data))
	assert.Equal(t, 5.0, e.Get(ChannelJoy))
	assert.False(t, e.IsZero())
}

func TestVectorUnmarshalArray(t *testing.T) {
	var v Vector
	require.NoError(t, json.Unmarshal([]byte(`[0.5,-0.2,1,2,3,4,5,6,7,8]`), &v))
	assert.Equal(t, 0.5, v[0])
	assert.Equal(t, 8.0, v[9])
}

func TestVectorUnmarshalArrayWrongLength(t *testing.T) {
	var v Vector
	err := json.Unmarshal([]byte(`[1,2,3]`), &v)
	assert.Error(t, err)
}

func TestVectorUnmarshalObjectAcceptsServiceLabels(t *testing.T) {
	var v Vector
	require.NoError(t, json.Unmarshal([]byte(`{
		"subjectivity":0.4,"polarity":-0.3,"fear":0,"anger":0,"anticip":0.25,
		"trust":0,"surprise":0,"sadness":0,"disgust":0,"joy":0.1}`), &v))
	assert.Equal(t, 0.4, v[0])
	assert.Equal(t, -0.3, v[1])
	assert.Equal(t, 0.25, v[4])
	assert.Equal(t, 0.1, v[9])

	err := json.Unmarshal([]byte(`{"bogus":1}`), &v)
	assert.Error(t, err)
}

func TestVectorUnmarshalObjectRequiresEveryLabel(t *testing.T) {
	v := Vector{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	err := json.Unmarshal([]byte(`{"subjectivity":0.4,"anticip":0.25,"joy":0.1}`), &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"polarity"`)
	assert.Equal(t, Vector{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, v, "a rejected vector leaves the target untouched")

	assert.Error(t, json.Unmarshal([]byte(`{}`), &v))
}

func TestVectorMarshalRoundTripsThroughLabels(t *testing.T) {
	v := Vector{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"subjectivity":1`)
	assert.Contains(t, string(data), `"joy":10`)

	var back Vector
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, v, back)
}

func TestGraphRejectsDuplicateNodesAndDanglingLinks(t *testing.T) {
	g := NewGraph("1")
	assert.True(t, g.AddNode(&Node{ID: "a"}))
	assert.False(t, g.AddNode(&Node{ID: "a"}))
	assert.True(t, g.AddNode(&Node{ID: "b"}))

	assert.True(t, g.AddLink(Link{Source: "a", Target: "b"}))
	assert.True(t, g.AddLink(Link{Source: "a", Target: "b"}), "duplicates are kept")
	assert.False(t, g.AddLink(Link{Source: "a", Target: "zzz"}))

	assert.Len(t, g.Links, 2)
	assert.Equal(t, 1, g.NodeIndex("b"))
	assert.Equal(t, -1, g.NodeIndex("c"))
}

func TestLinkConnectsEitherDirection(t *testing.T) {
	l := Link{Source: "a", Target: "b"}
	assert.True(t, l.Connects("a", "b"))
	assert.True(t, l.Connects("b", "a"))
	assert.False(t, l.Connects("a", "c"))
}
