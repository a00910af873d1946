// Package adminapi is a read-only HTTP introspection surface for
// operators: it is not the DSA WebSocket request/response transport (out
// of scope) and performs no mutation. Router-plus-logging-middleware
// wiring in a deliberately smaller form than a full request/response API.
package adminapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dsbroker/broker/internal/audit"
	"github.com/dsbroker/broker/internal/events"
	"github.com/dsbroker/broker/internal/metrics"
	"github.com/dsbroker/broker/internal/node"
	"github.com/dsbroker/broker/internal/upstream"
	"github.com/dsbroker/broker/pkg/log"
	"github.com/dsbroker/broker/pkg/permission"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Server exposes GET /healthz, GET /upstreams, GET /upstreams/{name}/overlay,
// GET /permission, plus two export endpoints (GET /upstreams/snapshot,
// GET /metrics/lineprotocol) for sinks that don't speak Prometheus's own
// scrape format.
type Server struct {
	root      *node.Node
	registry  *upstream.Registry
	audit     *audit.Log
	metrics   *metrics.Collector
	events    *events.Publisher
	http      *http.Server
	listening string
}

// New builds a Server. root is the broker node the permission endpoint
// resolves paths against; registry lists upstream entries. auditLog,
// collector and publisher may all be nil, in which case the corresponding
// side effect (denial recording, resolution counting, denial publishing)
// is simply skipped.
func New(addr string, root *node.Node, registry *upstream.Registry, auditLog *audit.Log, collector *metrics.Collector, publisher *events.Publisher) *Server {
	s := &Server{root: root, registry: registry, audit: auditLog, metrics: collector, events: publisher, listening: addr}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/upstreams", s.handleUpstreams).Methods(http.MethodGet)
	r.HandleFunc("/upstreams/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/upstreams/{name}/overlay", s.handleUpstreamOverlay).Methods(http.MethodGet)
	r.HandleFunc("/permission", s.handlePermission).Methods(http.MethodGet)
	r.HandleFunc("/metrics/lineprotocol", s.handleMetricsLineProtocol).Methods(http.MethodGet)

	logged := handlers.CustomLoggingHandler(log.InfoWriter, r, func(w io.Writer, params handlers.LogFormatterParams) {
		log.Finfof(w, "adminapi: %s %s (%d, %dB)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, params.Size)
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the HTTP server in the background. The returned error channel
// receives exactly one value when ListenAndServe returns.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		log.Infof("adminapi: listening on %s", s.listening)
		errc <- s.http.ListenAndServe()
	}()
	return errc
}

// Shutdown gracefully stops the HTTP server, waiting up to five seconds for
// in-flight requests to finish.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleUpstreams(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	out := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		entry, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, map[string]interface{}{
			"name":       entry.Settings.Name,
			"brokerName": entry.Settings.BrokerName,
			"url":        entry.Settings.URL,
			"group":      entry.Settings.Group,
			"enabled":    entry.Settings.Enabled,
			"polling":    entry.Poll != nil,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	groupsParam := r.URL.Query().Get("groups")

	var groups permission.Groups
	if groupsParam != "" {
		groups = strings.Split(groupsParam, ",")
	}

	level := audit.ResolveAndRecord(s.audit, func() permission.Level {
		return permission.Resolve(path, s.root, groups)
	}, path, groups)
	s.metrics.ObserveResolution(level.String())
	if level == permission.None {
		s.events.PublishPermissionDenied(path, groups)
	}
	writeJSON(w, map[string]interface{}{
		"path":   path,
		"groups": groups,
		"level":  level.String(),
	})
}

// handleSnapshot streams every registered upstream entry's settings as an
// Avro object container file, for operators backing up or auditing the
// registry's state outside the JSON files on disk.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	if err := s.registry.WriteSnapshot(w); err != nil {
		log.Errorf("adminapi: writing upstream snapshot: %v", err)
		http.Error(w, "failed to write snapshot", http.StatusInternalServerError)
	}
}

// handleUpstreamOverlay returns the named entry's virtual permission
// overlay tree: the permission lists attached onto its downstream subtree
// independently of anything the remote broker itself reports, per the
// overlay/virtual permission tree mechanism. With nothing attached the
// overlay root still encodes as an object, with a null List and null
// Children.
func (s *Server) handleUpstreamOverlay(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	entry, ok := s.registry.Get(name)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, entry.Data.OverlayNode())
}

// handleMetricsLineProtocol renders the same counters /metrics exposes as
// InfluxDB line protocol, for sinks that consume that format instead of
// scraping Prometheus's text exposition format.
func (s *Server) handleMetricsLineProtocol(w http.ResponseWriter, r *http.Request) {
	body, err := s.metrics.EncodeLineProtocol(time.Now())
	if err != nil {
		log.Errorf("adminapi: encoding line-protocol metrics: %v", err)
		http.Error(w, "failed to encode metrics", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("adminapi: encoding response: %v", err)
	}
}
