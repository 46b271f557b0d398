package view

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ritzau/emotion-graph/pkg/analysis"
	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/trace"
)

// PropagationResult summarizes a started propagation
type PropagationResult struct {
	RunID        string          `json:"runId"`
	UserID       string          `json:"userId"`
	Message      string          `json:"message,omitempty"`
	Vector       model.Vector    `json:"vector"`
	Seed         trace.Seed      `json:"seed"`
	SeedInferred bool            `json:"seedInferred,omitempty"`
	Steps        int             `json:"steps"`
	Dropped      []trace.Dropped `json:"dropped,omitempty"`
	Participants []string        `json:"participants"`
}

// Propagate analyzes message as published by userID and animates the returned trace.
//
// The graph is not locked while the service is working; if it is rebuilt in the
// meantime the result is discarded with ErrGraphChanged. A log without a unique seed
// is seeded with userID and the message's own vector. A malformed log is reported and
// nothing is animated.
func (c *Controller) Propagate(ctx context.Context, userID, message string) (*PropagationResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(message) == "" {
		c.SetStatus("Select a user and write a message", true)
		return nil, errors.WithHint(
			errors.Wrap(ErrInvalidRequest, "user and message are required"),
			"select a user and write a message")
	}

	c.mu.Lock()
	if c.analyzer == nil {
		c.mu.Unlock()
		return nil, errors.New("no analysis service configured")
	}
	if c.graph.Empty() {
		c.mu.Unlock()
		return nil, errors.WithHint(ErrNoGraph, "upload the edges and attributes files first")
	}
	if !c.graph.HasNode(userID) {
		c.setStatusLocked("User "+userID+" is not in the network", true)
		c.mu.Unlock()
		return nil, errors.Wrapf(ErrNotFound, "%q", userID)
	}
	version := c.version
	c.setStatusLocked("Starting propagation…", false)
	c.mu.Unlock()

	resp, err := c.analyzer.AnalyzeMessage(ctx, userID, message)
	if err != nil {
		logging.WarnContext(ctx, "analysis failed", "user", userID, "error", err)
		c.SetStatus(analysis.UserMessage(err), true)
		return nil, err
	}
	if resp.Vector == nil {
		err := errors.Mark(errors.New("analysis returned no vector"), analysis.ErrInvalidResponse)
		c.SetStatus(analysis.UserMessage(err), true)
		return nil, err
	}

	tr, err := trace.Normalize(resp.Log)
	seedInferred := false
	switch {
	case errors.Is(err, trace.ErrMissingSeedEvent):
		vector := *resp.Vector
		tr = tr.WithSeed(trace.Seed{UserID: userID, Vector: &vector})
		seedInferred = true
	case err != nil:
		c.SetStatus("The propagation log is malformed: "+err.Error(), true)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if version != c.version {
		c.setStatusLocked("The network changed during the analysis, try again", true)
		return nil, ErrGraphChanged
	}

	result := &PropagationResult{
		RunID:        newRunID(),
		UserID:       userID,
		Message:      resp.Message,
		Vector:       *resp.Vector,
		Seed:         *tr.Seed,
		SeedInferred: seedInferred,
		Steps:        len(tr.Steps),
		Dropped:      tr.Dropped,
		Participants: tr.Participants(),
	}

	c.startAnimationLocked(result.RunID, tr.Steps)
	c.lastResult = result
	if err := c.focusLocked(userID); err != nil {
		return nil, err
	}
	c.setStatusLocked("Propagation started", false)

	logging.InfoContext(ctx, "propagation started", "run", result.RunID, "user", userID,
		"steps", result.Steps, "seed_inferred", seedInferred)
	return result, nil
}

// startAnimationLocked replaces the running animation with steps
func (c *Controller) startAnimationLocked(runID string, steps []trace.Step) {
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	c.scheduler.Start(runID, steps, c.clk.Now())

	ctx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	go c.scheduler.Run(ctx, c.clk)
}

// LastResult returns the result of the current propagation, if any
func (c *Controller) LastResult() *PropagationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}
