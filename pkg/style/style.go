// Package style computes the per-element styles the 3D renderer applies each frame.
package style

import (
	"fmt"
	"math"
	"sort"

	"github.com/ritzau/emotion-graph/pkg/model"
)

const (
	NeutralLinkColor   = "#FFFFFF"
	PermanentLinkColor = "#aaff00"
	FlashColor         = "#8a411d"

	NeutralLinkWidth   = 0.8
	PermanentLinkWidth = 2.0
	ArrowLength        = 5.0
	NodeOpacity        = 0.8

	// gradientChannels is the number of strongest channels blended into a node colour
	gradientChannels = 3
)

// EmotionColors maps each channel to its legend colour
var EmotionColors = map[model.EmotionChannel]string{
	model.ChannelFear:         "#A100A1",
	model.ChannelAnger:        "#FF0000",
	model.ChannelAnticipation: "#FF6200",
	model.ChannelTrust:        "#00CED1",
	model.ChannelSurprise:     "#FF69B4",
	model.ChannelSadness:      "#4682B4",
	model.ChannelDisgust:      "#00FF00",
	model.ChannelJoy:          "#FFFF00",
}

// LinkVisual is the transient visual state of one link. Highlighted marks a reveal
// in progress.
type LinkVisual struct {
	Highlighted bool    `json:"isHighlighted"`
	Permanent   bool    `json:"isPermanentlyHighlighted"`
	Progress    float64 `json:"animationProgress"`
}

// Cleared reports whether v carries no highlight at all
func (v LinkVisual) Cleared() bool {
	return !v.Highlighted && !v.Permanent && v.Progress == 0
}

// LinkStyle is what the renderer draws for a link
type LinkStyle struct {
	Color       string  `json:"color"`
	Width       float64 `json:"width"`
	ArrowLength float64 `json:"arrowLength"`
	ArrowColor  string  `json:"arrowColor"`
}

// Link derives a link style from its visual state. A revealing link fades from white
// to the permanent colour as its progress goes from 0 to 1, even when an earlier
// step already left it permanently highlighted.
func Link(v LinkVisual) LinkStyle {
	switch {
	case v.Highlighted:
		p := clamp01(v.Progress)
		r := math.Round(255*(1-p) + 170*p)
		b := math.Round(255 * (1 - p))
		color := fmt.Sprintf("rgb(%d,255,%d)", int(r), int(b))
		return LinkStyle{Color: color, Width: NeutralLinkWidth + 1.2*p, ArrowLength: ArrowLength, ArrowColor: color}
	case v.Permanent:
		return LinkStyle{Color: PermanentLinkColor, Width: PermanentLinkWidth, ArrowLength: ArrowLength, ArrowColor: PermanentLinkColor}
	default:
		return LinkStyle{Color: NeutralLinkColor, Width: NeutralLinkWidth, ArrowLength: ArrowLength, ArrowColor: NeutralLinkColor}
	}
}

// GradientStop is one colour stop of a node's horizontal gradient, offset in [0,1]
type GradientStop struct {
	Offset float64 `json:"offset"`
	Color  string  `json:"color"`
}

// NodeStyle is what the renderer draws for a node. When Flash is set the gradient is
// replaced by the solid Color.
type NodeStyle struct {
	Color    string         `json:"color,omitempty"`
	Gradient []GradientStop `json:"gradient,omitempty"`
	Opacity  float64        `json:"opacity"`
	Flash    bool           `json:"flash,omitempty"`
}

// Node derives the style of a node from its incoming emotions
func Node(e model.Emotions, flashing bool) NodeStyle {
	if flashing {
		return NodeStyle{Color: FlashColor, Opacity: NodeOpacity, Flash: true}
	}
	return NodeStyle{Gradient: Gradient(e), Opacity: NodeOpacity}
}

// Gradient returns the stops of the three strongest channels, each starting where the
// previous one's share of their summed weight ends. Ties keep channel order.
func Gradient(e model.Emotions) []GradientStop {
	idx := make([]int, model.NumEmotions)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return e[idx[a]] > e[idx[b]] })
	idx = idx[:gradientChannels]

	total := 0.0
	for _, i := range idx {
		total += e[i]
	}
	if total == 0 {
		total = 1
	}

	stops := make([]GradientStop, len(idx))
	offset := 0.0
	for k, i := range idx {
		stops[k] = GradientStop{Offset: clamp01(offset), Color: EmotionColors[model.EmotionChannels[i]]}
		offset += e[i] / total
	}
	return stops
}

// LegendEntry pairs a channel with its colour
type LegendEntry struct {
	Channel model.EmotionChannel `json:"channel"`
	Color   string               `json:"color"`
}

// Legend lists the channel colours in canonical order
func Legend() []LegendEntry {
	legend := make([]LegendEntry, 0, model.NumEmotions)
	for _, ch := range model.EmotionChannels {
		legend = append(legend, LegendEntry{Channel: ch, Color: EmotionColors[ch]})
	}
	return legend
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
