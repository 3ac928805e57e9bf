// Package status serves read-only JSON views of running flows and their
// triggers, plus the Prometheus scrape endpoint.
package status

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/dagflow/internal/runtime/flow"
	"github.com/drblury/dagflow/internal/runtime/jsoncodec"
	"github.com/drblury/dagflow/internal/runtime/logging"
	"github.com/drblury/dagflow/internal/runtime/scheduler"
	"github.com/drblury/dagflow/internal/runtime/stage"
)

// Flow is the read-only view of a flow. *flow.Flow satisfies it.
type Flow interface {
	Label() string
	State() flow.State
	EntryNodes() []string
	Adjacency() map[string][]string
	ReadSensors() []stage.Reading
	QueueDepths() map[string]int
}

// Triggers reports supervisor state. *scheduler.Scheduler satisfies it.
type Triggers interface {
	ReadSensors() []scheduler.Reading
}

// FlowInfo is the /api/flow representation of one flow.
type FlowInfo struct {
	Label      string              `json:"label"`
	State      flow.State          `json:"state"`
	EntryNodes []string            `json:"entry_nodes"`
	Adjacency  map[string][]string `json:"adjacency"`
}

// Handler routes the status endpoints.
type Handler struct {
	mux         *http.ServeMux
	log         logging.ServiceLogger
	corsOrigins []string
	resources   *resourceSampler

	mu       sync.RWMutex
	flows    []Flow
	triggers Triggers
}

// Option configures a Handler.
type Option func(*Handler)

// WithCORSOrigins allows cross-origin reads from origins; "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(h *Handler) {
		h.corsOrigins = origins
	}
}

func WithLogger(log logging.ServiceLogger) Option {
	return func(h *Handler) {
		h.log = logging.OrDiscard(log)
	}
}

// WithTriggers exposes scheduler readings on /api/triggers.
func WithTriggers(t Triggers) Option {
	return func(h *Handler) {
		h.triggers = t
	}
}

// WithMetrics serves gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(h *Handler) {
		if gatherer != nil {
			h.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		}
	}
}

// NewHandler serves the given flows.
func NewHandler(flows []Flow, opts ...Option) *Handler {
	h := &Handler{
		mux:       http.NewServeMux(),
		log:       logging.Discard(),
		resources: newResourceSampler(),
	}
	for _, f := range flows {
		if f != nil {
			h.flows = append(h.flows, f)
		}
	}
	h.mux.HandleFunc("/api/sensors", h.read(h.sensors))
	h.mux.HandleFunc("/api/flow", h.read(h.flowInfo))
	h.mux.HandleFunc("/api/queues", h.read(h.queues))
	h.mux.HandleFunc("/api/triggers", h.read(h.triggerReadings))
	h.mux.HandleFunc("/api/resources", h.read(func() any { return h.resources.Sample() }))
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddFlow exposes another flow.
func (h *Handler) AddFlow(f Flow) {
	if f == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flows = append(h.flows, f)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) snapshot() []Flow {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Flow(nil), h.flows...)
}

func (h *Handler) sensors() any {
	out := make(map[string][]stage.Reading)
	for _, f := range h.snapshot() {
		out[f.Label()] = f.ReadSensors()
	}
	return out
}

func (h *Handler) flowInfo() any {
	flows := h.snapshot()
	out := make([]FlowInfo, 0, len(flows))
	for _, f := range flows {
		out = append(out, FlowInfo{
			Label:      f.Label(),
			State:      f.State(),
			EntryNodes: f.EntryNodes(),
			Adjacency:  f.Adjacency(),
		})
	}
	return out
}

func (h *Handler) queues() any {
	out := make(map[string]map[string]int)
	for _, f := range h.snapshot() {
		out[f.Label()] = f.QueueDepths()
	}
	return out
}

func (h *Handler) triggerReadings() any {
	h.mu.RLock()
	t := h.triggers
	h.mu.RUnlock()
	if t == nil {
		return []scheduler.Reading{}
	}
	return t.ReadSensors()
}

// read wraps a snapshot function into a GET-only JSON endpoint.
func (h *Handler) read(snapshot func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.setCORS(w, r)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet, http.MethodHead:
		default:
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := jsoncodec.Marshal(snapshot())
		if err != nil {
			h.log.Error("Failed to encode status", err, logging.LogFields{"path": r.URL.Path})
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func (h *Handler) setCORS(w http.ResponseWriter, r *http.Request) {
	if len(h.corsOrigins) == 0 {
		return
	}
	allowed := allowedOrigin(h.corsOrigins, r.Header.Get("Origin"))
	if allowed == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", allowed)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin,
// or "" when it is not allowed.
func allowedOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log logging.ServiceLogger) error {
	log = logging.OrDiscard(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logging.LogFields{"address": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("HTTP server stopped", logging.LogFields{"address": addr})
		return nil
	}
}
