package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// EmotionChannel names one of the eight incoming-emotion channels carried by a node.
type EmotionChannel string

const (
	ChannelFear         EmotionChannel = "fear"
	ChannelAnger        EmotionChannel = "anger"
	ChannelAnticipation EmotionChannel = "anticipation"
	ChannelTrust        EmotionChannel = "trust"
	ChannelSurprise     EmotionChannel = "surprise"
	ChannelSadness      EmotionChannel = "sadness"
	ChannelDisgust      EmotionChannel = "disgust"
	ChannelJoy          EmotionChannel = "joy"
)

// NumEmotions is the number of emotion channels on a node
const NumEmotions = 8

// EmotionChannels lists the channels in their canonical order
var EmotionChannels = [NumEmotions]EmotionChannel{
	ChannelFear,
	ChannelAnger,
	ChannelAnticipation,
	ChannelTrust,
	ChannelSurprise,
	ChannelSadness,
	ChannelDisgust,
	ChannelJoy,
}

// attributeColumns maps each channel to its column in the attributes file.
// Anticipation is abbreviated in the source data.
var attributeColumns = [NumEmotions]string{
	"in_fear",
	"in_anger",
	"in_anticip",
	"in_trust",
	"in_surprise",
	"in_sadness",
	"in_disgust",
	"in_joy",
}

// AttributeColumn returns the attributes-file column holding channel i
func AttributeColumn(i int) string {
	return attributeColumns[i]
}

// Emotions holds the incoming emotion channels of a node, indexed like EmotionChannels.
// It serializes as an object keyed by channel name in canonical order.
type Emotions [NumEmotions]float64

// Get returns the value of a named channel (0 for unknown names)
func (e Emotions) Get(ch EmotionChannel) float64 {
	for i, c := range EmotionChannels {
		if c == ch {
			return e[i]
		}
	}
	return 0
}

// IsZero reports whether every channel is zero
func (e Emotions) IsZero() bool {
	for _, v := range e {
		if v != 0 {
			return false
		}
	}
	return true
}

func (e Emotions) MarshalJSON() ([]byte, error) {
	labels := make([]string, NumEmotions)
	for i, c := range EmotionChannels {
		labels[i] = string(c)
	}
	return marshalLabeled(labels, e[:])
}

// VectorLen is the length of an analysis vector
const VectorLen = 10

// VectorLabels names the positions of an analysis vector, in order
var VectorLabels = [VectorLen]string{
	"subjectivity",
	"polarity",
	"fear",
	"anger",
	"anticipation",
	"trust",
	"surprise",
	"sadness",
	"disgust",
	"joy",
}

// vectorAliases accepts the abbreviated label used by the analysis service
var vectorAliases = map[string]string{
	"anticip": "anticipation",
}

// Vector is a 10-channel sentiment vector as produced by the message-analysis service:
// subjectivity, polarity and the eight emotion channels.
type Vector [VectorLen]float64

// VectorFromSlice converts a slice into a Vector. The slice must have exactly VectorLen values.
func VectorFromSlice(values []float64) (Vector, error) {
	var v Vector
	if len(values) != VectorLen {
		return v, fmt.Errorf("vector has %d values, want %d", len(values), VectorLen)
	}
	copy(v[:], values)
	return v, nil
}

// Labeled returns the vector as a label -> value map
func (v Vector) Labeled() map[string]float64 {
	m := make(map[string]float64, VectorLen)
	for i, label := range VectorLabels {
		m[label] = v[i]
	}
	return m
}

func (v Vector) MarshalJSON() ([]byte, error) {
	return marshalLabeled(VectorLabels[:], v[:])
}

// UnmarshalJSON accepts either a positional array of VectorLen numbers or an object
// keyed by label. The object must name every label; unknown labels are an error.
// JSON null leaves v unchanged.
func (v *Vector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var values []float64
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		parsed, err := VectorFromSlice(values)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}

	var labeled map[string]float64
	if err := json.Unmarshal(data, &labeled); err != nil {
		return err
	}
	var parsed Vector
	var seen [VectorLen]bool
	for key, value := range labeled {
		if alias, ok := vectorAliases[key]; ok {
			key = alias
		}
		idx := vectorIndex(key)
		if idx < 0 {
			return fmt.Errorf("unknown vector label %q", key)
		}
		parsed[idx] = value
		seen[idx] = true
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("vector is missing %q", VectorLabels[i])
		}
	}
	*v = parsed
	return nil
}

func vectorIndex(label string) int {
	for i, l := range VectorLabels {
		if l == label {
			return i
		}
	}
	return -1
}

// marshalLabeled writes values as a JSON object preserving label order
func marshalLabeled(labels []string, values []float64) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(label))
		buf.WriteByte(':')
		value := values[i]
		if math.IsNaN(value) || math.IsInf(value, 0) {
			value = 0
		}
		buf.WriteString(strconv.FormatFloat(value, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Position is a layout coordinate assigned by the renderer's force engine
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Node is a user in the network
type Node struct {
	ID        string   `json:"id"`
	Cluster   string   `json:"cluster,omitempty"`
	EmotionIn Emotions `json:"emotionIn"`
}

// Link is a directed relationship between two users. Duplicates are kept.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Connects reports whether the link joins a and b in either direction
func (l Link) Connects(a, b string) bool {
	return (l.Source == a && l.Target == b) || (l.Source == b && l.Target == a)
}
