package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/storage"
	"github.com/cimetrics/reporter/trendview"
	"github.com/cimetrics/reporter/types"
)

// ComparisonFile is the data export served under /api/comparison
const ComparisonFile = "comparison.json"

const defaultHistoryLimit = 50

// Server serves a report directory and, when a store is given, the history
// behind it
type Server struct {
	addr       string
	dir        string
	store      storage.HistoryStore
	log        logrus.FieldLogger
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	httpServer *http.Server
}

// NewServer creates a server for the report directory dir. store may be nil.
func NewServer(addr, dir string, store storage.HistoryStore, log logrus.FieldLogger) *Server {
	s := &Server{
		addr:     addr,
		dir:      dir,
		store:    store,
		log:      log.WithField("component", "report-server"),
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cimetrics",
			Name:      "http_requests_total",
			Help:      "Requests served by the report server.",
		}, []string{"route", "code"}),
	}
	s.registry.MustRegister(s.requests)
	return s
}

// Start listens in the background until Stop is called
func (s *Server) Start(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("report directory %s: %w", s.dir, err)
	}

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		s.log.WithField("addr", s.addr).Info("Report server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Report server failed")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the router with every route and middleware installed
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)
	router.Use(s.recoverMiddleware)

	router.HandleFunc("/report/latest", s.handleLatest).Methods(http.MethodGet).Name("latest")
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Name("metrics")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/manifest", s.handleManifest).Methods(http.MethodGet).Name("manifest")
	api.HandleFunc("/comparison", s.handleComparison).Methods(http.MethodGet).Name("comparison")
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet).Name("history")

	router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.dir))).Name("files")
	return router
}

// handleLatest redirects to the dashboard of the last completed run
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	manifest, err := trendview.ReadManifest(s.dir)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "no completed report")
		return
	}
	if !manifest.Has(trendview.DashboardFile) {
		s.writeError(w, http.StatusNotFound, "report has no dashboard")
		return
	}
	http.Redirect(w, r, "/"+trendview.DashboardFile, http.StatusFound)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := trendview.ReadManifest(s.dir)
	if errors.Is(err, trendview.ErrNoManifest) {
		s.writeError(w, http.StatusNotFound, "no completed report")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(s.dir, ComparisonFile))
	if errors.Is(err, os.ErrNotExist) {
		s.writeError(w, http.StatusNotFound, "no comparison exported")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleHistory lists stored documents of ?branch= or ?pr=, newest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "metrics store is not configured")
		return
	}

	query := r.URL.Query()
	sel := types.Selector{Branch: query.Get("branch"), PullRequestID: query.Get("pr")}
	if sel.IsZero() {
		s.writeError(w, http.StatusBadRequest, "branch or pr is required")
		return
	}

	limit := defaultHistoryLimit
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.store.List(r.Context(), sel)
	if err != nil {
		s.log.WithError(err).WithField("selector", sel.String()).Error("Failed to list history")
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if len(records) > limit {
		records = records[:limit]
	}

	docs := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		data, err := storage.EncodeDocument(rec)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		docs = append(docs, data)
	}
	s.writeJSON(w, http.StatusOK, docs)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil && current.GetName() != "" {
			route = current.GetName()
		}
		s.requests.WithLabelValues(route, strconv.Itoa(wrapper.statusCode)).Inc()

		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapper.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("HTTP request processed")
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.WithField("error", err).Error("Panic in HTTP handler")
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
