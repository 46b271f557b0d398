// Package animation reveals the links of a propagation trace one step at a time.
//
// The scheduler owns the transient visual state of every link of one graph. Each
// accepted tick advances a single state machine and, when anything changed, hands an
// immutable Frame to the frame callback. Nothing else writes link visual state.
package animation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ritzau/emotion-graph/pkg/clock"
	"github.com/ritzau/emotion-graph/pkg/graph"
	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/style"
	"github.com/ritzau/emotion-graph/pkg/trace"
)

// State is the overall state of the scheduler
type State int

const (
	Idle State = iota
	Running
	Complete
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StepState is the state of one trace step
type StepState int

const (
	StepScheduled StepState = iota
	StepRevealing
	StepSettled
	StepSkipped
)

func (s StepState) String() string {
	switch s {
	case StepScheduled:
		return "scheduled"
	case StepRevealing:
		return "revealing"
	case StepSettled:
		return "settled"
	case StepSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("StepState(%d)", int(s))
	}
}

func (s StepState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the animation timing
type Config struct {
	// InterStepDelay is the time between two steps becoming eligible
	InterStepDelay time.Duration
	// RevealDuration is how long one link takes to go from neutral to highlighted
	RevealDuration time.Duration
	// FrameInterval is the minimum time between two accepted ticks
	FrameInterval time.Duration
}

// DefaultConfig returns the standard timing: a step every two seconds, one second
// reveals and 60 frames per second
func DefaultConfig() Config {
	return Config{
		InterStepDelay: 2000 * time.Millisecond,
		RevealDuration: 1000 * time.Millisecond,
		FrameInterval:  time.Second / 60,
	}
}

// EdgeResolutionMiss is reported for a step whose users are not linked in the graph
type EdgeResolutionMiss struct {
	Step     int    `json:"step"`
	TimeStep int    `json:"timeStep"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

func (m EdgeResolutionMiss) Error() string {
	return fmt.Sprintf("step %d: no link between %s and %s", m.Step, m.Sender, m.Receiver)
}

// LinkFrame is the visual state of one non-neutral link in a frame
type LinkFrame struct {
	Index  int    `json:"index"`
	Source string `json:"source"`
	Target string `json:"target"`
	style.LinkVisual
	Style style.LinkStyle `json:"style"`
}

// Frame is an immutable snapshot of the animation. Links not listed are neutral.
type Frame struct {
	RunID      string      `json:"runId"`
	Seq        uint64      `json:"seq"`
	State      State       `json:"state"`
	NextStep   int         `json:"nextStep"`
	TotalSteps int         `json:"totalSteps"`
	Links      []LinkFrame `json:"links"`
}

// reveal is a link whose transition is in progress
type reveal struct {
	step  int
	start time.Time
}

// Scheduler drives the reveal of one trace over one graph
type Scheduler struct {
	mu      sync.Mutex
	index   *graph.Index
	cfg     Config
	onFrame func(Frame)
	log     *slog.Logger

	state      State
	generation uint64
	runID      string
	seq        uint64
	start      time.Time
	steps      []trace.Step
	stepStates []StepState
	next       int
	visual     []style.LinkVisual
	reveals    map[int]reveal
	misses     []EdgeResolutionMiss
	limiter    *rate.Limiter
	stop       chan struct{}
}

// New creates an idle scheduler for the links of ix. onFrame is called with the
// scheduler's lock held and must not call back into the scheduler.
func New(ix *graph.Index, cfg Config, onFrame func(Frame)) *Scheduler {
	if onFrame == nil {
		onFrame = func(Frame) {}
	}
	return &Scheduler{
		index:   ix,
		cfg:     cfg,
		onFrame: onFrame,
		log:     logging.New("animation"),
		visual:  make([]style.LinkVisual, len(ix.Graph().Links)),
		reveals: make(map[int]reveal),
	}
}

// Start replaces any current run with steps, timed from now. The previous run is
// cancelled first.
func (s *Scheduler) Start(runID string, steps []trace.Step, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running || s.state == Complete {
		s.cancelLocked()
	}

	s.generation++
	s.state = Running
	s.runID = runID
	s.seq = 0
	s.start = now
	s.steps = append([]trace.Step(nil), steps...)
	s.stepStates = make([]StepState, len(steps))
	s.next = 0
	s.misses = nil
	s.limiter = newLimiter(s.cfg.FrameInterval)
	s.stop = make(chan struct{})

	s.log.Debug("animation started", "run", runID, "steps", len(steps))
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Tick advances the animation to now. Ticks closer than the frame interval to the last
// accepted one are ignored. It reports whether the tick changed anything.
func (s *Scheduler) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickLocked(now)
}

func (s *Scheduler) tickLocked(now time.Time) bool {
	if s.state != Running {
		return false
	}
	if !s.limiter.AllowN(now, 1) {
		return false
	}

	changed := s.advanceLocked(now)
	if s.updateRevealsLocked(now) {
		changed = true
	}

	if s.next >= len(s.steps) && len(s.reveals) == 0 {
		s.state = Complete
		changed = true
		s.log.Debug("animation complete", "run", s.runID, "skipped", len(s.misses))
	}

	if changed {
		s.emitLocked()
	}
	return changed
}

// advanceLocked starts the reveal of at most one eligible step. Unmatched steps on the
// way are skipped.
func (s *Scheduler) advanceLocked(now time.Time) bool {
	expected := len(s.steps)
	if s.cfg.InterStepDelay > 0 {
		expected = int(now.Sub(s.start) / s.cfg.InterStepDelay)
	}

	changed := false
	for s.next <= expected && s.next < len(s.steps) {
		i := s.next
		s.next++
		changed = true

		step := s.steps[i]
		link, ok := s.index.FindLink(step.Sender, step.Receiver)
		if !ok {
			miss := EdgeResolutionMiss{Step: i, TimeStep: step.TimeStep, Sender: step.Sender, Receiver: step.Receiver}
			s.misses = append(s.misses, miss)
			s.stepStates[i] = StepSkipped
			s.log.Warn("step skipped", "run", s.runID, "error", miss.Error())
			continue
		}

		// a link revealed again restarts its transition
		if prev, ok := s.reveals[link]; ok {
			s.stepStates[prev.step] = StepSettled
		}
		s.reveals[link] = reveal{step: i, start: now}
		s.stepStates[i] = StepRevealing
		s.visual[link].Highlighted = true
		s.visual[link].Progress = 0
		break
	}
	return changed
}

func (s *Scheduler) updateRevealsLocked(now time.Time) bool {
	changed := false
	for link, r := range s.reveals {
		progress := 1.0
		if s.cfg.RevealDuration > 0 {
			progress = min(float64(now.Sub(r.start))/float64(s.cfg.RevealDuration), 1)
		}
		if progress >= 1 {
			s.visual[link] = style.LinkVisual{Permanent: true, Progress: 1}
			s.stepStates[r.step] = StepSettled
			delete(s.reveals, link)
		} else {
			s.visual[link].Progress = progress
		}
		changed = true
	}
	return changed
}

// Cancel stops the current run and clears every link synchronously. Cancelling an
// idle or cancelled scheduler does nothing.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle || s.state == Cancelled {
		return
	}
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	s.generation++
	s.state = Cancelled
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	for i := range s.visual {
		s.visual[i] = style.LinkVisual{}
	}
	clear(s.reveals)
	for i, st := range s.stepStates {
		if st == StepScheduled || st == StepRevealing {
			s.stepStates[i] = StepSkipped
		}
	}
	s.emitLocked()
	s.log.Debug("animation cancelled", "run", s.runID)
}

// Run drives ticks from clk until the current run completes, is cancelled or ctx is
// done. The ticker runs at twice the frame rate and the throttle coalesces the rest.
func (s *Scheduler) Run(ctx context.Context, clk clock.Clock) {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	stop := s.stop
	period := s.cfg.FrameInterval / 2
	s.mu.Unlock()

	if period <= 0 {
		period = time.Millisecond
	}
	ticker := clk.NewTicker(period)
	defer ticker.Stop()

	if !s.tickGeneration(gen, clk.Now()) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C():
			if !s.tickGeneration(gen, now) {
				return
			}
		}
	}
}

// tickGeneration ticks only while gen is still the current run. It reports whether
// the run is still going.
func (s *Scheduler) tickGeneration(gen uint64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state != Running {
		return false
	}
	s.tickLocked(now)
	return s.state == Running
}

// emitLocked hands a snapshot to the frame callback
func (s *Scheduler) emitLocked() {
	s.seq++
	s.onFrame(s.frameLocked())
}

func (s *Scheduler) frameLocked() Frame {
	links := s.index.Graph().Links
	f := Frame{
		RunID:      s.runID,
		Seq:        s.seq,
		State:      s.state,
		NextStep:   s.next,
		TotalSteps: len(s.steps),
		Links:      []LinkFrame{},
	}
	for i, v := range s.visual {
		if v.Cleared() {
			continue
		}
		f.Links = append(f.Links, LinkFrame{
			Index:      i,
			Source:     links[i].Source,
			Target:     links[i].Target,
			LinkVisual: v,
			Style:      style.Link(v),
		})
	}
	return f
}

// Snapshot returns the current frame without emitting it
func (s *Scheduler) Snapshot() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

// State returns the overall state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Visual returns the visual state of link i
func (s *Scheduler) Visual(i int) style.LinkVisual {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visual[i]
}

// StepStates returns a copy of the per-step states of the current run
func (s *Scheduler) StepStates() []StepState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StepState(nil), s.stepStates...)
}

// Misses returns the steps skipped so far because their link was not found
func (s *Scheduler) Misses() []EdgeResolutionMiss {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EdgeResolutionMiss(nil), s.misses...)
}

// Revealing returns the link positions currently being revealed, in link order
func (s *Scheduler) Revealing() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := make([]int, 0, len(s.reveals))
	for link := range s.reveals {
		links = append(links, link)
	}
	sort.Ints(links)
	return links
}
