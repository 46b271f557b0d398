package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/emotion-graph/pkg/logging"
)

// DefaultQueueSize is the number of undelivered events a subscriber may hold
const DefaultQueueSize = 100

// Overflow decides what happens when a subscriber's queue is full
type Overflow int

const (
	// DropNewest discards the event being published. Suits topics where every
	// event is a separate command and a stale one is as good as a missing one.
	DropNewest Overflow = iota
	// DropOldest discards the subscriber's oldest queued event so the newest
	// always gets through. Suits topics where each event supersedes the last.
	DropOldest
)

// TopicConfig configures buffering and delivery for a topic
type TopicConfig struct {
	BufferSize int      // events kept for replay (0 = none)
	ReplayAll  bool     // replay every kept event, otherwise only the last one
	QueueSize  int      // per-subscriber queue (0 = DefaultQueueSize)
	Overflow   Overflow // policy when a subscriber queue is full
}

func (c TopicConfig) queueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return DefaultQueueSize
}

// topic holds the state of one named stream
type topic struct {
	config  TopicConfig
	version int
	history []Event
	subs    map[*sseSubscription]struct{}
}

// replay returns the events a new subscriber starts with
func (t *topic) replay() []Event {
	if len(t.history) == 0 || t.config.ReplayAll {
		return t.history
	}
	return t.history[len(t.history)-1:]
}

func (t *topic) remember(event Event) {
	if t.config.BufferSize <= 0 {
		return
	}
	t.history = append(t.history, event)
	if over := len(t.history) - t.config.BufferSize; over > 0 {
		t.history = append(t.history[:0:0], t.history[over:]...)
	}
}

// SSEPublisher implements Publisher for Server-Sent Event streams.
// Publish never blocks on a slow subscriber.
type SSEPublisher struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

// NewSSEPublisher creates a publisher where every topic starts unbuffered
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{topics: make(map[string]*topic)}
}

// lookup returns the state of name, creating it on first use. Callers hold p.mu.
func (p *SSEPublisher) lookup(name string) *topic {
	t, ok := p.topics[name]
	if !ok {
		t = &topic{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// ConfigureTopic sets buffering and delivery for a topic. Existing
// subscribers keep the queue they were created with.
func (p *SSEPublisher) ConfigureTopic(name string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookup(name).config = config
}

// Subscribe registers a subscriber that is closed when ctx ends. Replayed
// events are queued before the subscriber becomes visible to Publish, so
// they always arrive ahead of anything newer.
func (p *SSEPublisher) Subscribe(ctx context.Context, name string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("publisher is closed")
	}

	t := p.lookup(name)
	sub := &sseSubscription{
		topic:     name,
		events:    make(chan Event, t.config.queueSize()),
		publisher: p,
	}
	backlog := t.replay()
	for _, event := range backlog {
		sub.deliver(event, t.config.Overflow)
	}
	t.subs[sub] = struct{}{}
	p.mu.Unlock()

	if len(backlog) > 0 {
		logging.Trace("replayed events to new subscriber", "topic", name, "count", len(backlog))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish stamps data with the topic's next version and hands it to every subscriber
func (p *SSEPublisher) Publish(name string, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	t := p.lookup(name)
	t.version++
	event := Event{Topic: name, Type: eventType, Data: payload, Version: t.version}
	t.remember(event)

	for sub := range t.subs {
		if sub.deliver(event, t.config.Overflow) {
			continue
		}
		switch t.config.Overflow {
		case DropOldest:
			logging.Debug("subscriber lagging, superseded queued event", "topic", name, "version", event.Version)
		default:
			logging.Warn("subscriber queue full, dropping event", "topic", name, "type", eventType)
		}
	}

	return nil
}

// Close ends every subscription. Further Subscribe and Publish calls fail.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, t := range p.topics {
		for sub := range t.subs {
			close(sub.events)
		}
		t.subs = make(map[*sseSubscription]struct{})
	}
	return nil
}

func (p *SSEPublisher) subscriberCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return len(t.subs)
	}
	return 0
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[sub.topic]; ok {
		delete(t.subs, sub)
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher

	mu     sync.Mutex
	closed bool
}

// deliver queues event without blocking and reports whether the queue had
// room. Under DropOldest a full queue gives up its head to make room, so the
// event is always queued. Callers hold the publisher lock, which makes the
// publisher the only sender.
func (s *sseSubscription) deliver(event Event, overflow Overflow) bool {
	select {
	case s.events <- event:
		return true
	default:
	}
	if overflow != DropOldest {
		return false
	}
	// The reader may drain the queue between the two selects, so the
	// receive must not block either.
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- event:
	default:
		// Unreachable with a single sender; keep Publish non-blocking regardless.
	}
	return false
}

func (s *sseSubscription) Topic() string {
	return s.topic
}

func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription from its publisher. The channel is only
// closed by the publisher itself.
func (s *sseSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.publisher.unsubscribe(s)
	return nil
}

// WriteSSE writes one event as an SSE "data:" record
func WriteSSE(w io.Writer, event Event) error {
	record, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", record)
	return err
}
