// Package view owns the single live graph and everything the user does with it:
// focusing and searching users, inspecting them, running propagations and resetting
// the view. It tells a Renderer what to draw and never draws anything itself.
package view

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ritzau/emotion-graph/pkg/analysis"
	"github.com/ritzau/emotion-graph/pkg/animation"
	"github.com/ritzau/emotion-graph/pkg/clock"
	"github.com/ritzau/emotion-graph/pkg/graph"
	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
)

var (
	// ErrNotFound is returned when a focus, search or propagation target is not in the graph
	ErrNotFound = errors.New("user not found")

	// ErrInvalidRequest is returned for incomplete user input
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoGraph is returned when an operation needs a graph and none is loaded
	ErrNoGraph = errors.New("no graph loaded")

	// ErrGraphChanged is returned when the graph was rebuilt while a propagation was
	// waiting for the analysis service
	ErrGraphChanged = errors.New("graph changed during propagation")
)

// Camera is a focus transition: the camera moves to Position looking at LookAt
type Camera struct {
	Position model.Position `json:"position"`
	LookAt   model.Position `json:"lookAt"`
	Duration time.Duration  `json:"-"`
}

// Renderer is the external 3D engine
type Renderer interface {
	FocusOn(nodeID string, camera Camera)
	FitAll(duration time.Duration, padding int)
	Refresh()
	ShowFrame(frame animation.Frame)
	ShowStatus(status Status)
}

// Analyzer analyzes the message a user publishes
type Analyzer interface {
	AnalyzeMessage(ctx context.Context, userID, message string) (*analysis.Response, error)
}

// Config holds the view timing
type Config struct {
	Animation       animation.Config
	FlashDuration   time.Duration
	FocusTransition time.Duration
	FitDuration     time.Duration
	FitPadding      int
	// FitSettle is how long a fit-all holds the camera
	FitSettle time.Duration
}

// DefaultConfig returns the standard view timing
func DefaultConfig() Config {
	return Config{
		Animation:       animation.DefaultConfig(),
		FlashDuration:   9000 * time.Millisecond,
		FocusTransition: 1500 * time.Millisecond,
		FitDuration:     400 * time.Millisecond,
		FitPadding:      100,
		FitSettle:       500 * time.Millisecond,
	}
}

const (
	minExtent      = 10.0
	cameraDistance = 1.5
)

// Status is the one-line state shown to the user
type Status struct {
	Text         string `json:"text"`
	Error        bool   `json:"error,omitempty"`
	Network      string `json:"network"`
	Nodes        int    `json:"nodes"`
	Links        int    `json:"links"`
	GraphVersion uint64 `json:"graphVersion"`
	Focused      string `json:"focused,omitempty"`
}

// cameraRequest is a camera transition waiting for the guard
type cameraRequest struct {
	nodeID string // empty for fit-all
}

// Controller is the view state machine. All methods are safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	renderer Renderer
	analyzer Analyzer
	clk      clock.Clock
	cfg      Config

	network   string
	graph     *model.Graph
	index     *graph.Index
	scheduler *animation.Scheduler
	runCancel context.CancelFunc
	version   uint64
	positions map[string]model.Position

	focused string

	flashNode  string
	flashUntil time.Time
	flashToken uint64
	flashTimer clock.Timer

	cameraToken    uint64
	cameraInFlight bool
	cameraPending  *cameraRequest
	cameraTimer    clock.Timer

	status     Status
	lastResult *PropagationResult
}

// NewController creates a controller with an empty graph
func NewController(renderer Renderer, analyzer Analyzer, clk clock.Clock, cfg Config) *Controller {
	c := &Controller{
		renderer:  renderer,
		analyzer:  analyzer,
		clk:       clk,
		cfg:       cfg,
		positions: make(map[string]model.Position),
	}
	c.installLocked("", model.NewGraph(""))
	c.status = Status{Text: "Upload the edges and attributes files"}
	return c
}

// Rebuild replaces the live graph. The previous animation, flash and camera state are
// torn down before the new graph is installed, and the camera fits the new graph.
func (c *Controller) Rebuild(network string, g *model.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelAnimationLocked()
	c.cancelFlashLocked()
	c.cancelCameraLocked()
	c.focused = ""
	c.lastResult = nil

	c.installLocked(network, g)

	text := fmt.Sprintf("%d nodes · %d links", len(g.Nodes), len(g.Links))
	if network != "" {
		text = fmt.Sprintf("Network %s: %s", network, text)
	}
	c.setStatusLocked(text, false)
	logging.Info("graph installed", "network", network, "nodes", len(g.Nodes), "links", len(g.Links), "version", c.version)

	c.renderer.Refresh()
	c.requestCameraLocked(cameraRequest{})
}

func (c *Controller) installLocked(network string, g *model.Graph) {
	c.network = network
	c.graph = g
	c.index = graph.NewIndex(g)
	c.scheduler = animation.New(c.index, c.cfg.Animation, c.renderer.ShowFrame)
	c.version++

	kept := make(map[string]model.Position, len(g.Nodes))
	for _, n := range g.Nodes {
		if p, ok := c.positions[n.ID]; ok {
			kept[n.ID] = p
		}
	}
	c.positions = kept
}

// SetStatus shows text to the user, for progress reported outside the controller
func (c *Controller) SetStatus(text string, isError bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStatusLocked(text, isError)
}

func (c *Controller) setStatusLocked(text string, isError bool) {
	c.status = Status{
		Text:         text,
		Error:        isError,
		Network:      c.network,
		Nodes:        len(c.graph.Nodes),
		Links:        len(c.graph.Links),
		GraphVersion: c.version,
		Focused:      c.focused,
	}
	c.renderer.ShowStatus(c.status)
}

// Status returns the current status
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Focused returns the focused user, or "" when nothing is focused
func (c *Controller) Focused() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// Focus moves the camera to a user and flashes it. An unknown user clears the focus,
// fits the whole graph and returns ErrNotFound.
func (c *Controller) Focus(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focusLocked(strings.TrimSpace(id))
}

func (c *Controller) focusLocked(id string) error {
	if id == "" || !c.graph.HasNode(id) {
		c.focused = ""
		c.cancelFlashLocked()
		c.setStatusLocked(fmt.Sprintf("User %q not found", id), true)
		c.requestCameraLocked(cameraRequest{})
		return errors.Wrapf(ErrNotFound, "%q", id)
	}

	c.focused = id
	c.startFlashLocked(id)
	c.requestCameraLocked(cameraRequest{nodeID: id})
	c.renderer.Refresh()
	return nil
}

// Reset clears the focus, stops any animation and fits the whole graph
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.focused = ""
	c.lastResult = nil
	c.cancelAnimationLocked()
	c.cancelFlashLocked()
	c.requestCameraLocked(cameraRequest{})
	c.renderer.Refresh()
	logging.Debug("view reset")
}

// Search focuses the user whose id equals query, falling back to a case-insensitive
// match. It returns the focused id.
func (c *Controller) Search(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", errors.WithHint(errors.Wrap(ErrInvalidRequest, "empty search"), "type a user id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := q
	if !c.graph.HasNode(q) {
		id = ""
		for _, n := range c.graph.Nodes {
			if strings.EqualFold(n.ID, q) {
				id = n.ID
				break
			}
		}
	}
	if id == "" {
		return "", c.focusLocked(q)
	}
	return id, c.focusLocked(id)
}

// startFlashLocked flashes id for the flash duration, superseding any earlier flash
func (c *Controller) startFlashLocked(id string) {
	c.cancelFlashLocked()
	token := c.flashToken
	c.flashNode = id
	c.flashUntil = c.clk.Now().Add(c.cfg.FlashDuration)
	c.flashTimer = c.clk.AfterFunc(c.cfg.FlashDuration, func() {
		c.endFlash(token)
	})
}

func (c *Controller) endFlash(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.flashToken {
		return
	}
	c.flashNode = ""
	c.flashTimer = nil
	c.renderer.Refresh()
}

func (c *Controller) cancelFlashLocked() {
	c.flashToken++
	if c.flashTimer != nil {
		c.flashTimer.Stop()
		c.flashTimer = nil
	}
	c.flashNode = ""
}

func (c *Controller) flashingLocked(id string) bool {
	return id != "" && id == c.flashNode && c.clk.Now().Before(c.flashUntil)
}

// requestCameraLocked starts a camera transition, or queues it when one is in flight.
// Only the latest queued request survives.
func (c *Controller) requestCameraLocked(req cameraRequest) {
	if c.cameraInFlight {
		c.cameraPending = &req
		return
	}
	c.startCameraLocked(req)
}

func (c *Controller) startCameraLocked(req cameraRequest) {
	c.cameraToken++
	token := c.cameraToken
	c.cameraInFlight = true

	hold := c.cfg.FitSettle
	if req.nodeID != "" && c.graph.HasNode(req.nodeID) {
		cam := c.cameraForLocked(req.nodeID)
		hold = cam.Duration
		c.renderer.FocusOn(req.nodeID, cam)
	} else {
		c.renderer.FitAll(c.cfg.FitDuration, c.cfg.FitPadding)
	}

	c.cameraTimer = c.clk.AfterFunc(hold, func() {
		c.cameraDone(token)
	})
}

func (c *Controller) cameraDone(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.cameraToken {
		return
	}
	c.cameraInFlight = false
	c.cameraTimer = nil
	if next := c.cameraPending; next != nil {
		c.cameraPending = nil
		c.startCameraLocked(*next)
	}
}

func (c *Controller) cancelCameraLocked() {
	c.cameraToken++
	if c.cameraTimer != nil {
		c.cameraTimer.Stop()
		c.cameraTimer = nil
	}
	c.cameraInFlight = false
	c.cameraPending = nil
}

// cameraForLocked places the camera beside the node, at a distance proportional to the
// extent of the laid out graph
func (c *Controller) cameraForLocked(id string) Camera {
	target := c.positions[id]
	d := max(c.extentLocked(), minExtent) * cameraDistance
	return Camera{
		Position: model.Position{X: target.X + d, Y: target.Y + d*0.5, Z: target.Z},
		LookAt:   target,
		Duration: c.cfg.FocusTransition,
	}
}

// extentLocked is the largest side of the bounding box of all nodes. Nodes without a
// reported position count as the origin.
func (c *Controller) extentLocked() float64 {
	if len(c.graph.Nodes) == 0 {
		return minExtent
	}
	lo := model.Position{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := model.Position{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, n := range c.graph.Nodes {
		p := c.positions[n.ID]
		lo = model.Position{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
		hi = model.Position{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
	}
	return max(hi.X-lo.X, hi.Y-lo.Y, hi.Z-lo.Z)
}

// UpdatePositions records layout positions reported by the renderer. Unknown ids and
// non-finite coordinates are ignored. It returns the number of positions stored.
func (c *Controller) UpdatePositions(positions map[string]model.Position) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := 0
	for id, p := range positions {
		if !c.graph.HasNode(id) || !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			continue
		}
		c.positions[id] = p
		stored++
	}
	return stored
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c *Controller) cancelAnimationLocked() {
	c.scheduler.Cancel()
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
}

// newRunID returns an id for a propagation run
func newRunID() string {
	return uuid.NewString()
}
