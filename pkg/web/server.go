package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"

	"github.com/ritzau/emotion-graph/pkg/analysis"
	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/pipeline"
	"github.com/ritzau/emotion-graph/pkg/pubsub"
	"github.com/ritzau/emotion-graph/pkg/tabular"
	"github.com/ritzau/emotion-graph/pkg/trace"
	"github.com/ritzau/emotion-graph/pkg/view"
)

//go:embed static/*
var staticFiles embed.FS

const (
	maxUploadSize = 32 << 20
	maxBodySize   = 1 << 20
)

// errBadRequest marks client errors that carry no sentinel of their own
var errBadRequest = errors.New("bad request")

// HealthChecker probes the analysis service
type HealthChecker interface {
	Health(ctx context.Context) (*analysis.Health, error)
}

// Server represents the web server
type Server struct {
	router     *mux.Router
	publisher  pubsub.Publisher
	controller *view.Controller
	runner     *pipeline.Runner
	health     HealthChecker
}

// Option configures a Server
type Option func(*Server)

// WithHealthChecker reports the analysis service state on /health
func WithHealthChecker(h HealthChecker) Option {
	return func(s *Server) {
		s.health = h
	}
}

// NewServer creates a new web server. pub must be the publisher the controller's
// Renderer publishes on.
func NewServer(pub pubsub.Publisher, controller *view.Controller, runner *pipeline.Runner, opts ...Option) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		publisher:  pub,
		controller: controller,
		runner:     runner,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler with request logging
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// Streams
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")
	s.router.HandleFunc("/api/ws", s.handleWebSocket).Methods("GET")

	// Data
	s.router.HandleFunc("/api/upload/edges", s.handleUploadEdges).Methods("POST")
	s.router.HandleFunc("/api/upload/attributes", s.handleUploadAttributes).Methods("POST")
	s.router.HandleFunc("/api/networks", s.handleNetworks).Methods("GET")
	s.router.HandleFunc("/api/networks/{id}/select", s.handleSelectNetwork).Methods("POST")
	s.router.HandleFunc("/api/summary", s.handleSummary).Methods("GET")

	// View
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/nodes/{id}", s.handleNode).Methods("GET")
	s.router.HandleFunc("/api/search", s.handleSearch).Methods("POST")
	s.router.HandleFunc("/api/reset", s.handleReset).Methods("POST")
	s.router.HandleFunc("/api/propagate", s.handlePropagate).Methods("POST")
	s.router.HandleFunc("/api/positions", s.handlePositions).Methods("POST")
	s.router.HandleFunc("/api/animation", s.handleAnimation).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Serve static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logging.Fatal("static files missing", "error", err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

func (s *Server) handleUploadEdges(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, s.runner.LoadEdges)
}

func (s *Server) handleUploadAttributes(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, s.runner.LoadAttributes)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, load func(context.Context, string, io.Reader) (*pipeline.Summary, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, errors.WithHint(errors.Mark(errors.Wrap(err, "reading upload"), errBadRequest),
			"send the file as multipart field \"file\""))
		return
	}
	defer file.Close()

	summary, err := load(r.Context(), header.Filename, file)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			err = errors.Mark(err, errBadRequest)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	ids, selected := s.runner.Networks()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"networks": ids,
		"selected": selected,
	})
}

func (s *Server) handleSelectNetwork(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.Select(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Summary())
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleAnimation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Animation())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	info, err := s.controller.Inspect(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !readJSON(w, r, &req) {
		return
	}
	id, err := s.controller.Search(req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.controller.Reset()
	writeJSON(w, http.StatusOK, s.controller.Status())
}

type propagateRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (s *Server) handlePropagate(w http.ResponseWriter, r *http.Request) {
	var req propagateRequest
	if !readJSON(w, r, &req) {
		return
	}
	result, err := s.controller.Propagate(r.Context(), req.UserID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	var positions map[string]model.Position
	if !readJSON(w, r, &positions) {
		return
	}
	n := s.controller.UpdatePositions(positions)
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if h, err := s.health.Health(ctx); err != nil {
			resp["analysis"] = "unavailable"
		} else {
			resp["analysis"] = h.Status
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, errors.Mark(errors.Wrap(err, "decoding request"), errBadRequest))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("writing response failed", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "handler error", "path", r.URL.Path, "error", err)
	} else {
		logging.DebugContext(r.Context(), "handler error", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, code, errorBody{
		Error: err.Error(),
		Hint:  strings.Join(errors.GetAllHints(err), "; "),
	})
}

// statusCode maps the error taxonomy onto HTTP status codes
func statusCode(err error) int {
	var malformed *trace.MalformedVectorError
	switch {
	case errors.Is(err, view.ErrNotFound), errors.Is(err, pipeline.ErrUnknownNetwork):
		return http.StatusNotFound
	case errors.Is(err, view.ErrInvalidRequest),
		errors.Is(err, tabular.ErrUnsupportedFormat),
		errors.Is(err, pipeline.ErrEmptyFile),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, view.ErrNoGraph), errors.Is(err, view.ErrGraphChanged):
		return http.StatusConflict
	case analysis.IsServiceError(err),
		errors.Is(err, analysis.ErrInvalidResponse),
		errors.As(err, &malformed):
		return http.StatusBadGateway
	case errors.Is(err, analysis.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Start serves on port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", "http://localhost"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Info("shutting down web server")
		return srv.Shutdown(shutdownCtx)
	}
}
