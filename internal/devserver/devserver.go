// Package devserver exposes controller diagnostics to development tooling.
// It is only started by dev-launcher hosts and binds to loopback.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/updraft-ota/updraft/internal/controller"
	"github.com/updraft-ota/updraft/internal/eventbus"
	"github.com/updraft-ota/updraft/internal/observability"
)

const defaultAddr = "127.0.0.1:0"

// Options groups dependencies required to construct a Server.
type Options struct {
	Controller controller.Controller
	Bus        *eventbus.Bus
	Metrics    *observability.PrometheusExporter // optional; enables GET /v1/metrics
	WatchDir   string                            // updates directory to watch for external changes; empty disables the watcher
	Addr       string                            // listen address, loopback recommended; empty picks an ephemeral port
}

// Server serves controller status over HTTP and streams bus events over
// WebSocket.
type Server struct {
	ctrl     controller.Controller
	bus      *eventbus.Bus
	metrics  *observability.PrometheusExporter
	watchDir string
	addr     string

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	cancel   context.CancelFunc
}

// New creates a diagnostics server bound to the provided controller.
func New(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("devserver: controller is required")
	}
	addr := opts.Addr
	if addr == "" {
		addr = defaultAddr
	}
	return &Server{
		ctrl:     opts.Controller,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		watchDir: opts.WatchDir,
		addr:     addr,
	}, nil
}

// Start begins listening and, when a watch directory is configured, starts
// the updates-directory watcher.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("devserver: already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("devserver: listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/metrics", s.handleMetrics)

	srv := &http.Server{Handler: mux}
	runCtx, cancel := context.WithCancel(ctx)

	s.listener = ln
	s.httpSrv = srv
	s.cancel = cancel

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[DevServer] serve: %v", err)
		}
	}()

	if s.watchDir != "" && s.bus != nil {
		if err := s.watch(runCtx, s.watchDir); err != nil {
			log.Printf("[DevServer] directory watcher unavailable: %v", err)
		}
	}

	log.Printf("[DevServer] listening on %s", ln.Addr())
	return nil
}

// Shutdown stops the HTTP server and the watcher.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	cancel := s.cancel
	s.listener = nil
	s.httpSrv = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr returns the bound listen address, usable once Start has returned.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// statusResponse is the payload of GET /v1/status.
type statusResponse struct {
	State        string               `json:"state"`
	IsStarted    bool                 `json:"isStarted"`
	Constants    controller.Constants `json:"constants"`
	StateContext any                  `json:"stateContext,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:     s.ctrl.State().String(),
		IsStarted: s.ctrl.IsStarted(),
		Constants: s.ctrl.ConstantsForModule(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	select {
	case res := <-s.ctrl.StateMachineContext(ctx):
		if res.Err == nil {
			resp.StateContext = res.Context
		}
	case <-ctx.Done():
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[DevServer] write status response: %v", err)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics exporter not configured")
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if _, err := w.Write(s.metrics.Export()); err != nil {
		log.Printf("[DevServer] write metrics response: %v", err)
	}
}

// Loopback-only server; dev tooling connects from local web origins.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[DevServer] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	topics := []eventbus.Topic{
		eventbus.TopicState,
		eventbus.TopicCheck,
		eventbus.TopicFetch,
		eventbus.TopicStorage,
	}

	merged := make(chan eventbus.Envelope, 64)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range topics {
		sub := s.bus.Subscribe(topic, 16, "devserver")
		defer sub.Close()
		go func(sub *eventbus.Subscription) {
			for {
				select {
				case env, ok := <-sub.C():
					if !ok {
						return
					}
					select {
					case merged <- env:
					case <-done:
						return
					}
				case <-done:
					return
				}
			}
		}(sub)
	}

	for {
		select {
		case env := <-merged:
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		log.Printf("[DevServer] write error response: %v", err)
	}
}
