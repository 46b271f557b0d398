package web

import (
	"time"

	"github.com/ritzau/emotion-graph/pkg/animation"
	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/pubsub"
	"github.com/ritzau/emotion-graph/pkg/view"
)

// Event types published by the Renderer
const (
	EventStatus = "status"
	EventFrame  = "frame"
)

// NewPublisher creates the publisher with the buffering each topic needs
func NewPublisher() *pubsub.SSEPublisher {
	pub := pubsub.NewSSEPublisher()

	// status: new subscribers get the current line only, a slow one skips stale lines
	pub.ConfigureTopic(pubsub.TopicStatus, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
		Overflow:   pubsub.DropOldest,
	})

	// frames: each frame carries the whole link state, so only the newest matters
	pub.ConfigureTopic(pubsub.TopicFrames, pubsub.TopicConfig{
		BufferSize: 1,
		ReplayAll:  false,
		QueueSize:  16,
		Overflow:   pubsub.DropOldest,
	})

	// camera: transitions are transient and never replayed
	pub.ConfigureTopic(pubsub.TopicCamera, pubsub.TopicConfig{})

	return pub
}

// Renderer forwards view commands to the browser through the publisher.
// It implements view.Renderer and never calls back into the controller.
type Renderer struct {
	publisher pubsub.Publisher
}

// NewRenderer creates a renderer publishing on pub
func NewRenderer(pub pubsub.Publisher) *Renderer {
	return &Renderer{publisher: pub}
}

var _ view.Renderer = (*Renderer)(nil)

// FocusOn moves the browser camera to a node
func (r *Renderer) FocusOn(nodeID string, camera view.Camera) {
	r.publish(pubsub.TopicCamera, pubsub.CameraFocus, pubsub.CameraCommand{
		NodeID:     nodeID,
		Position:   vector(camera.Position),
		LookAt:     vector(camera.LookAt),
		DurationMs: camera.Duration.Milliseconds(),
	})
}

// FitAll zooms the browser camera out to the whole graph
func (r *Renderer) FitAll(duration time.Duration, padding int) {
	r.publish(pubsub.TopicCamera, pubsub.CameraFit, pubsub.CameraCommand{
		DurationMs: duration.Milliseconds(),
		Padding:    padding,
	})
}

// Refresh asks the browser to reload node styles
func (r *Renderer) Refresh() {
	r.publish(pubsub.TopicCamera, pubsub.CameraRefresh, pubsub.CameraCommand{})
}

// ShowFrame sends the link state of an animation frame
func (r *Renderer) ShowFrame(frame animation.Frame) {
	r.publish(pubsub.TopicFrames, EventFrame, frame)
}

// ShowStatus sends the status line
func (r *Renderer) ShowStatus(status view.Status) {
	r.publish(pubsub.TopicStatus, EventStatus, status)
}

func (r *Renderer) publish(topic, eventType string, data interface{}) {
	if err := r.publisher.Publish(topic, eventType, data); err != nil {
		logging.Debug("publish failed", "topic", topic, "type", eventType, "error", err)
	}
}

func vector(p model.Position) *pubsub.Vector3 {
	return &pubsub.Vector3{X: p.X, Y: p.Y, Z: p.Z}
}
