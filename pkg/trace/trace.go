// Package trace turns the raw propagation log returned by the message-analysis
// service into an ordered, validated sequence of steps with a single seed event.
package trace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
)

// ErrMissingSeedEvent is returned when the log does not contain exactly one entry
// without a sender
var ErrMissingSeedEvent = errors.New("propagation log has no unique seed event")

// MalformedVectorError reports a vector whose length is not model.VectorLen
type MalformedVectorError struct {
	Entry  int
	Field  string
	Length int
}

func (e *MalformedVectorError) Error() string {
	return fmt.Sprintf("log entry %d: %s has %d values, want %d", e.Entry, e.Field, e.Length, model.VectorLen)
}

// RawEntry is one event of the propagation log as sent by the service
type RawEntry struct {
	TimeStep           *int      `json:"timeStep"`
	Sender             string    `json:"sender,omitempty"`
	Receiver           string    `json:"receiver"`
	Action             string    `json:"action,omitempty"`
	SentVector         []float64 `json:"sentVector,omitempty"`
	ReceiverStateAfter []float64 `json:"receiverStateAfter,omitempty"`
}

// Step is a validated propagation event between two users
type Step struct {
	TimeStep           int           `json:"timeStep"`
	Sender             string        `json:"sender"`
	Receiver           string        `json:"receiver"`
	Action             string        `json:"action,omitempty"`
	SentVector         *model.Vector `json:"sentVector,omitempty"`
	ReceiverStateAfter *model.Vector `json:"receiverStateAfter,omitempty"`
}

// Seed is the original publication of the message
type Seed struct {
	TimeStep int           `json:"timeStep"`
	UserID   string        `json:"userId"`
	Action   string        `json:"action,omitempty"`
	Vector   *model.Vector `json:"vector,omitempty"`
}

// Dropped describes a log entry that was filtered out
type Dropped struct {
	Entry  int    `json:"entry"`
	Reason string `json:"reason"`
}

// Trace is a normalized propagation log
type Trace struct {
	Seed    *Seed     `json:"seed"`
	Steps   []Step    `json:"steps"`
	Dropped []Dropped `json:"dropped,omitempty"`
}

// Normalize validates raw and orders its steps.
//
// Entries without a time step (or with a negative one) and entries without a receiver
// are dropped. The single sender-less entry becomes the seed; when there is none or
// more than one, ErrMissingSeedEvent is returned together with a Trace whose Seed is nil
// and whose Steps are still ordered, so that the caller can pick a seed itself.
// Steps are stably sorted by time step. A vector with the wrong number of values fails
// the whole log with a *MalformedVectorError.
func Normalize(raw []RawEntry) (*Trace, error) {
	log := logging.New("trace")
	tr := &Trace{Steps: make([]Step, 0, len(raw))}
	var seeds []Seed

	for i, entry := range raw {
		if entry.TimeStep == nil || *entry.TimeStep < 0 {
			tr.Dropped = append(tr.Dropped, Dropped{Entry: i, Reason: "missing time step"})
			continue
		}
		receiver := strings.TrimSpace(entry.Receiver)
		if receiver == "" {
			tr.Dropped = append(tr.Dropped, Dropped{Entry: i, Reason: "missing receiver"})
			continue
		}

		sent, err := vector(i, "sentVector", entry.SentVector)
		if err != nil {
			return nil, err
		}
		after, err := vector(i, "receiverStateAfter", entry.ReceiverStateAfter)
		if err != nil {
			return nil, err
		}

		sender := strings.TrimSpace(entry.Sender)
		if sender == "" {
			seeds = append(seeds, Seed{
				TimeStep: *entry.TimeStep,
				UserID:   receiver,
				Action:   entry.Action,
				Vector:   sent,
			})
			continue
		}

		tr.Steps = append(tr.Steps, Step{
			TimeStep:           *entry.TimeStep,
			Sender:             sender,
			Receiver:           receiver,
			Action:             entry.Action,
			SentVector:         sent,
			ReceiverStateAfter: after,
		})
	}

	sort.SliceStable(tr.Steps, func(a, b int) bool {
		return tr.Steps[a].TimeStep < tr.Steps[b].TimeStep
	})

	for _, d := range tr.Dropped {
		log.Warn("dropped log entry", "entry", d.Entry, "reason", d.Reason)
	}

	if len(seeds) != 1 {
		return tr, errors.Wrapf(ErrMissingSeedEvent, "found %d sender-less entries", len(seeds))
	}
	tr.Seed = &seeds[0]

	log.Debug("trace normalized", "seed", tr.Seed.UserID, "steps", len(tr.Steps), "dropped", len(tr.Dropped))
	return tr, nil
}

func vector(entry int, field string, values []float64) (*model.Vector, error) {
	if values == nil {
		return nil, nil
	}
	v, err := model.VectorFromSlice(values)
	if err != nil {
		return nil, &MalformedVectorError{Entry: entry, Field: field, Length: len(values)}
	}
	return &v, nil
}

// WithSeed returns a copy of t using seed as its seed event
func (t *Trace) WithSeed(seed Seed) *Trace {
	out := *t
	out.Seed = &seed
	return &out
}

// Participants lists the distinct users of the trace in order of appearance,
// starting with the seed
func (t *Trace) Participants() []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if t.Seed != nil {
		add(t.Seed.UserID)
	}
	for _, s := range t.Steps {
		add(s.Sender)
		add(s.Receiver)
	}
	return ids
}
