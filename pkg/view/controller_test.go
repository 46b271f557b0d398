package view

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/emotion-graph/pkg/analysis"
	"github.com/ritzau/emotion-graph/pkg/animation"
	"github.com/ritzau/emotion-graph/pkg/clock"
	"github.com/ritzau/emotion-graph/pkg/graph"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/tabular"
	"github.com/ritzau/emotion-graph/pkg/trace"
)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type focusCall struct {
	id     string
	camera Camera
}

type fakeRenderer struct {
	mu        sync.Mutex
	focuses   []focusCall
	fits      int
	refreshes int
	frames    []animation.Frame
	statuses  []Status
}

func (r *fakeRenderer) FocusOn(id string, camera Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focuses = append(r.focuses, focusCall{id: id, camera: camera})
}

func (r *fakeRenderer) FitAll(time.Duration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fits++
}

func (r *fakeRenderer) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
}

func (r *fakeRenderer) ShowFrame(f animation.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *fakeRenderer) ShowStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *fakeRenderer) focusIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.focuses))
	for i, f := range r.focuses {
		ids[i] = f.id
	}
	return ids
}

func (r *fakeRenderer) fitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fits
}

func (r *fakeRenderer) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// framesOf returns the frames of runID shown from position from onwards
func (r *fakeRenderer) framesOf(runID string, from int) []animation.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []animation.Frame
	for _, f := range r.frames[from:] {
		if f.RunID == runID {
			out = append(out, f)
		}
	}
	return out
}

func (r *fakeRenderer) lastStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[len(r.statuses)-1]
}

type fakeAnalyzer struct {
	resp  *analysis.Response
	err   error
	calls int
	hook  func()
}

func (a *fakeAnalyzer) AnalyzeMessage(ctx context.Context, userID, message string) (*analysis.Response, error) {
	a.calls++
	if a.hook != nil {
		a.hook()
	}
	return a.resp, a.err
}

type fixture struct {
	ctrl     *Controller
	renderer *fakeRenderer
	clk      *clock.Fake
	analyzer *fakeAnalyzer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		renderer: &fakeRenderer{},
		clk:      clock.NewFake(epoch),
		analyzer: &fakeAnalyzer{},
	}
	f.ctrl = NewController(f.renderer, f.analyzer, f.clk, DefaultConfig())

	edges := []tabular.Row{
		{"source": "a", "target": "b"},
		{"source": "b", "target": "c"},
	}
	attrs := []tabular.Row{
		{"user_name": "a", "in_joy": "5", "cluster": "k1"},
		{"user_name": "b", "in_fear": "1"},
	}
	f.ctrl.Rebuild("n1", graph.Build(edges, attrs, "").Graph)
	// let the initial fit-all settle
	f.clk.Advance(time.Second)
	return f
}

func ts(n int) *int { return &n }

func TestRebuildStatus(t *testing.T) {
	f := newFixture(t)

	st := f.ctrl.Status()
	assert.Equal(t, "Network n1: 3 nodes · 2 links", st.Text)
	assert.False(t, st.Error)
	assert.Equal(t, 1, f.renderer.fitCount(), "a rebuild fits the new graph")

	f.ctrl.Rebuild("", model.NewGraph(""))
	assert.Equal(t, "0 nodes · 0 links", f.ctrl.Status().Text)
}

func TestFocusMissingNodeFitsAll(t *testing.T) {
	f := newFixture(t)
	fits := f.renderer.fitCount()

	err := f.ctrl.Focus("x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "", f.ctrl.Focused())
	assert.Equal(t, fits+1, f.renderer.fitCount())
	assert.Empty(t, f.renderer.focusIDs())
	assert.True(t, f.renderer.lastStatus().Error)
}

func TestFocusCameraGeometry(t *testing.T) {
	f := newFixture(t)
	f.ctrl.UpdatePositions(map[string]model.Position{
		"a": {X: 0, Y: 0, Z: 0},
		"b": {X: 40, Y: 10, Z: -5},
		"c": {X: 20, Y: 30, Z: 5},
	})

	require.NoError(t, f.ctrl.Focus("b"))
	require.Len(t, f.renderer.focuses, 1)
	cam := f.renderer.focuses[0].camera

	// extent 40, distance 60
	assert.Equal(t, model.Position{X: 100, Y: 40, Z: -5}, cam.Position)
	assert.Equal(t, model.Position{X: 40, Y: 10, Z: -5}, cam.LookAt)
	assert.Equal(t, 1500*time.Millisecond, cam.Duration)
}

func TestFocusMinimumDistance(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Focus("a"))
	cam := f.renderer.focuses[0].camera
	assert.Equal(t, model.Position{X: 15, Y: 7.5, Z: 0}, cam.Position, "unlaid graphs use the minimum extent")
}

func TestFlashClearsAutomatically(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Focus("a"))

	st, err := f.ctrl.NodeStyle("a")
	require.NoError(t, err)
	assert.True(t, st.Flash)

	f.clk.Advance(8999 * time.Millisecond)
	st, _ = f.ctrl.NodeStyle("a")
	assert.True(t, st.Flash)

	f.clk.Advance(time.Millisecond)
	st, _ = f.ctrl.NodeStyle("a")
	assert.False(t, st.Flash)
	assert.Equal(t, "a", f.ctrl.Focused(), "the focus outlives the flash")
}

func TestNewerFocusSupersedesFlash(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Focus("a"))
	f.clk.Advance(5 * time.Second)
	require.NoError(t, f.ctrl.Focus("b"))

	st, _ := f.ctrl.NodeStyle("a")
	assert.False(t, st.Flash, "only the focused node flashes")

	f.clk.Advance(5 * time.Second)
	st, _ = f.ctrl.NodeStyle("b")
	assert.True(t, st.Flash, "the first flash timer must not clear the second flash")

	f.clk.Advance(4 * time.Second)
	st, _ = f.ctrl.NodeStyle("b")
	assert.False(t, st.Flash)
	assert.Equal(t, 0, f.clk.Pending())
}

func TestCameraGuardLatestWins(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.Focus("a"))
	require.NoError(t, f.ctrl.Focus("b"))
	require.NoError(t, f.ctrl.Focus("c"))
	assert.Equal(t, []string{"a"}, f.renderer.focusIDs(), "one transition in flight")

	f.clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a", "c"}, f.renderer.focusIDs(), "queued requests collapse to the latest")

	f.clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a", "c"}, f.renderer.focusIDs())
	assert.Equal(t, "c", f.ctrl.Focused())
}

func TestResetDuringTransitionQueuesFit(t *testing.T) {
	f := newFixture(t)
	fits := f.renderer.fitCount()

	require.NoError(t, f.ctrl.Focus("a"))
	f.ctrl.Reset()
	assert.Equal(t, fits, f.renderer.fitCount())
	assert.Equal(t, "", f.ctrl.Focused())

	f.clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, fits+1, f.renderer.fitCount())

	st, _ := f.ctrl.NodeStyle("a")
	assert.False(t, st.Flash, "reset cancels the flash")
}

func TestRebuildDropsStaleCameraCallbacks(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Focus("a"))
	require.NoError(t, f.ctrl.Focus("b"))

	f.ctrl.Rebuild("n2", graph.Build([]tabular.Row{{"source": "x", "target": "y"}}, nil, "").Graph)
	f.clk.Advance(2 * time.Second)

	assert.Equal(t, []string{"a"}, f.renderer.focusIDs(), "the queued focus died with the old graph")
	assert.Equal(t, "", f.ctrl.Focused())
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Rebuild("", graph.Build([]tabular.Row{{"source": "Alice", "target": "bob"}}, nil, "").Graph)
	f.clk.Advance(time.Second)

	id, err := f.ctrl.Search(" alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", id)
	assert.Equal(t, "Alice", f.ctrl.Focused())

	f.clk.Advance(2 * time.Second)
	_, err = f.ctrl.Search("carol")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "", f.ctrl.Focused())

	_, err = f.ctrl.Search("  ")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	f.ctrl.UpdatePositions(map[string]model.Position{"b": {X: 1, Y: 2, Z: 3}, "zz": {X: 9}})

	info, err := f.ctrl.Inspect("b")
	require.NoError(t, err)
	assert.Equal(t, 1, info.InDegree)
	assert.Equal(t, 1, info.OutDegree)
	assert.Equal(t, []string{"a", "c"}, info.Neighbors)
	assert.Equal(t, 1.0, info.EmotionIn.Get(model.ChannelFear))
	require.NotNil(t, info.Position)
	assert.Equal(t, 3.0, info.Position.Z)
	assert.True(t, info.Style.Flash)
	assert.Equal(t, "b", f.ctrl.Focused())

	_, err = f.ctrl.Inspect("zz")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	snap := f.ctrl.Snapshot()

	assert.Equal(t, "n1", snap.Network)
	require.Len(t, snap.Nodes, 3)
	require.Len(t, snap.Links, 2)
	assert.Equal(t, "k1", snap.Nodes[0].Cluster)
	assert.Equal(t, "#FFFF00", snap.Nodes[0].Style.Gradient[0].Color)
	assert.Equal(t, "#FFFFFF", snap.Links[0].Style.Color)
	assert.Len(t, snap.Legend, 8)

	snap.Nodes[0].EmotionIn[0] = 99
	again := f.ctrl.Snapshot()
	assert.Equal(t, 0.0, again.Nodes[0].EmotionIn[0], "snapshots are copies")
}

func TestPropagateAnimatesTrace(t *testing.T) {
	f := newFixture(t)
	f.analyzer.resp = &analysis.Response{
		Vector: &model.Vector{0.1, 0.2},
		Log: []trace.RawEntry{
			{TimeStep: ts(0), Receiver: "a"},
			{TimeStep: ts(2), Sender: "b", Receiver: "c"},
			{TimeStep: ts(1), Sender: "a", Receiver: "b"},
		},
		Message: "done",
	}

	res, err := f.ctrl.Propagate(context.Background(), "a", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Steps)
	assert.False(t, res.SeedInferred)
	assert.Equal(t, "a", res.Seed.UserID)
	assert.Equal(t, []string{"a", "b", "c"}, res.Participants)
	assert.Equal(t, "a", f.ctrl.Focused())
	assert.Same(t, res, f.ctrl.LastResult())

	require.Eventually(t, func() bool {
		return len(f.ctrl.Animation().Links) == 1
	}, time.Second, 5*time.Millisecond, "the first step starts revealing immediately")

	f.ctrl.Reset()
	frame := f.ctrl.Animation()
	assert.Equal(t, animation.Cancelled, frame.State)
	assert.Empty(t, frame.Links)
	assert.Nil(t, f.ctrl.LastResult())
}

func TestRebuildStopsRunningAnimation(t *testing.T) {
	f := newFixture(t)
	f.analyzer.resp = &analysis.Response{
		Vector: &model.Vector{},
		Log: []trace.RawEntry{
			{TimeStep: ts(0), Receiver: "a"},
			{TimeStep: ts(1), Sender: "a", Receiver: "b"},
			{TimeStep: ts(2), Sender: "b", Receiver: "c"},
		},
	}

	res, err := f.ctrl.Propagate(context.Background(), "a", "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(f.ctrl.Animation().Links) == 1
	}, time.Second, 5*time.Millisecond)

	before := f.renderer.frameCount()
	edges := []tabular.Row{
		{"source": "a", "target": "b"},
		{"source": "b", "target": "c"},
	}
	f.ctrl.Rebuild("n1", graph.Build(edges, nil, "").Graph)

	// the teardown clears every link of the old run in one frame
	torn := f.renderer.framesOf(res.RunID, before)
	require.Len(t, torn, 1)
	assert.Equal(t, animation.Cancelled, torn[0].State)
	assert.Empty(t, torn[0].Links)

	after := f.renderer.frameCount()
	for i := 0; i < 5; i++ {
		f.clk.Advance(f.ctrl.cfg.Animation.InterStepDelay)
	}
	assert.Never(t, func() bool {
		return len(f.renderer.framesOf(res.RunID, after)) > 0
	}, 100*time.Millisecond, 10*time.Millisecond, "the old run keeps animating the new graph")

	frame := f.ctrl.Animation()
	assert.Equal(t, animation.Idle, frame.State)
	assert.Empty(t, frame.Links)
	assert.Nil(t, f.ctrl.LastResult())
}

func TestPropagateWithoutLogUsesSelectedUser(t *testing.T) {
	f := newFixture(t)
	f.analyzer.resp = &analysis.Response{Vector: &model.Vector{0, 0, 0.5}}

	res, err := f.ctrl.Propagate(context.Background(), "b", "hello")
	require.NoError(t, err)
	assert.True(t, res.SeedInferred)
	assert.Equal(t, "b", res.Seed.UserID)
	require.NotNil(t, res.Seed.Vector)
	assert.Equal(t, 0.5, res.Seed.Vector[2])
	assert.Equal(t, 0, res.Steps)
}

func TestPropagateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Propagate(context.Background(), "", "hello")
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = f.ctrl.Propagate(context.Background(), "a", "   ")
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = f.ctrl.Propagate(context.Background(), "nobody", "hello")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, 0, f.analyzer.calls, "invalid requests never reach the service")
}

func TestPropagateServiceError(t *testing.T) {
	f := newFixture(t)
	f.analyzer.err = &analysis.ServiceError{StatusCode: 500, Detail: "model crashed"}

	_, err := f.ctrl.Propagate(context.Background(), "a", "hello")
	require.Error(t, err)

	st := f.ctrl.Status()
	assert.True(t, st.Error)
	assert.Equal(t, "Analysis failed: model crashed", st.Text)
	assert.Equal(t, 1, f.analyzer.calls)
	assert.Equal(t, animation.Idle, f.ctrl.Animation().State)
}

func TestPropagateMalformedLog(t *testing.T) {
	f := newFixture(t)
	f.analyzer.resp = &analysis.Response{
		Vector: &model.Vector{},
		Log: []trace.RawEntry{
			{TimeStep: ts(0), Receiver: "a", SentVector: []float64{1, 2, 3}},
		},
	}

	_, err := f.ctrl.Propagate(context.Background(), "a", "hello")
	var mve *trace.MalformedVectorError
	require.True(t, errors.As(err, &mve))
	assert.True(t, f.ctrl.Status().Error)
	assert.Equal(t, animation.Idle, f.ctrl.Animation().State)
}

func TestPropagateRejectsResponseWithoutVector(t *testing.T) {
	f := newFixture(t)
	f.analyzer.resp = &analysis.Response{}

	_, err := f.ctrl.Propagate(context.Background(), "a", "hello")
	assert.True(t, errors.Is(err, analysis.ErrInvalidResponse))
	assert.True(t, f.ctrl.Status().Error)
	assert.Nil(t, f.ctrl.LastResult())
}

func TestPropagateDiscardedAfterRebuild(t *testing.T) {
	f := newFixture(t)
	f.analyzer.resp = &analysis.Response{Vector: &model.Vector{}}
	g := f.ctrl.graph
	f.analyzer.hook = func() {
		f.ctrl.Rebuild("n1", g)
	}

	_, err := f.ctrl.Propagate(context.Background(), "a", "hello")
	assert.True(t, errors.Is(err, ErrGraphChanged))
}

func TestPropagateWithoutGraph(t *testing.T) {
	ctrl := NewController(&fakeRenderer{}, &fakeAnalyzer{}, clock.NewFake(epoch), DefaultConfig())
	_, err := ctrl.Propagate(context.Background(), "a", "hello")
	assert.True(t, errors.Is(err, ErrNoGraph))
}

func TestUpdatePositionsIgnoresUnknownAndNonFinite(t *testing.T) {
	f := newFixture(t)
	n := f.ctrl.UpdatePositions(map[string]model.Position{
		"a":     {X: 1},
		"ghost": {X: 2},
	})
	assert.Equal(t, 1, n)
}
