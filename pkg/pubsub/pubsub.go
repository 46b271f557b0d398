package pubsub

import (
	"context"
	"encoding/json"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "status", "frames")
	Type    string          `json:"type"`    // Event type (e.g., "status", "frame", "focus")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// Topics carried by the publisher
const (
	TopicStatus = "status" // view status line and graph version
	TopicFrames = "frames" // animation frames
	TopicCamera = "camera" // camera commands for the renderer
)

// Event types on TopicCamera
const (
	CameraFocus   = "focus"
	CameraFit     = "fit"
	CameraRefresh = "refresh"
)

// CameraCommand is the payload of a camera event
type CameraCommand struct {
	NodeID     string   `json:"nodeId,omitempty"`
	Position   *Vector3 `json:"position,omitempty"`
	LookAt     *Vector3 `json:"lookAt,omitempty"`
	DurationMs int64    `json:"durationMs,omitempty"`
	Padding    int      `json:"padding,omitempty"`
}

// Vector3 is a point in renderer space
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
