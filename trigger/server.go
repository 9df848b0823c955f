package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/errors"
	"github.com/tidemark-health/guidepost/publish"
)

// shutdownGrace bounds how long Stop waits for an in-flight cycle before
// cancelling it and force-closing connections.
const shutdownGrace = 30 * time.Second

// Server is the request-mode controller: an HTTP listener that runs one
// cycle per POST /run and acknowledges only after the cycle completes.
// Concurrent requests serialize on the publisher's cycle lock, so a second
// POST blocks until the first cycle finishes, then runs its own.
type Server struct {
	runner CycleRunner
	addr   string
	http   *http.Server
	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.SugaredLogger
}

type healthResponse struct {
	Status    string               `json:"status"`
	State     publish.State        `json:"state"`
	LastCycle *publish.CycleReport `json:"last_cycle,omitempty"`
}

// NewServer creates a request-mode controller listening on addr.
func NewServer(addr string, runner CycleRunner, log *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		runner: runner,
		addr:   addr,
		ctx:    ctx,
		cancel: cancel,
		log:    log.Named("trigger"),
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: POST /run holds the response open for the full
		// cycle runtime, which can be minutes.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/run", s.handleRun)
	r.Get("/health", s.handleHealth)

	return r
}

// Start binds the listener and begins serving. A bind failure (port taken,
// bad address) is a configuration error; the process should exit on it.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Mark(
			errors.Wrapf(err, "binding trigger listener on %s", s.addr),
			errors.ErrConfiguration)
	}
	s.ln = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("trigger listener exited", "error", err)
		}
	}()

	s.log.Infow("waiting for POST requests", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address. Before Start it returns the
// configured address.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop drains the listener. An in-flight cycle gets the grace period to
// finish and publish; past that it is cancelled and fails, leaving the
// previously published state.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Warnw("graceful shutdown expired, aborting in-flight cycle", "error", err)
		s.cancel()
		s.http.Close() //nolint:errcheck
	}

	s.cancel()
	s.wg.Wait()
	s.log.Infow("trigger listener stopped")
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.log.Infow("got POST request",
		"remote", r.RemoteAddr,
		"request_id", middleware.GetReqID(r.Context()))

	// The cycle runs on the server context, not the request context: a
	// client that gives up must not abort a publication mid-flight.
	report, err := s.runner.RunCycle(s.ctx)
	if err != nil {
		var cycleID string
		if report != nil {
			cycleID = report.CycleID
		}
		s.log.Errorw("cycle failed", "cycle_id", cycleID, "error", err)
		http.Error(w, fmt.Sprintf("cycle failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Recommendations applied in %dms (cycle %s)\n", report.DurationMs, report.CycleID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		State:     s.runner.State(),
		LastCycle: s.runner.LastReport(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warnw("writing health response", "error", err)
	}
}
