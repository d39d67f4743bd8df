// Package httpapi serves the latest snapshot over HTTP: health, JSON state,
// CSV download of the history and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/mqttio"
	"github.com/luki/labmonitor/internal/pipeline"
	"github.com/luki/labmonitor/internal/sensor"
	"github.com/luki/labmonitor/internal/store"
)

// Source provides the latest snapshot.
type Source interface {
	Latest() pipeline.Snapshot
}

// Broker reports the MQTT client's identity and publish statistics.
type Broker interface {
	ID() string
	Stats() mqttio.Stats
}

// Server exposes a Source over HTTP.
type Server struct {
	source   Source
	broker   Broker
	registry *prometheus.Registry
	log      *slog.Logger
}

// New creates a server. registry may be nil, which disables /metrics.
func New(source Source, registry *prometheus.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{source: source, registry: registry, log: log}
}

// WithBroker enables /api/mqtt.
func (s *Server) WithBroker(b Broker) *Server {
	s.broker = b
	return s
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot", s.snapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/predictions/{sensor}", s.prediction).Methods(http.MethodGet)
	r.HandleFunc("/api/history.csv", s.historyCSV).Methods(http.MethodGet)
	if s.broker != nil {
		r.HandleFunc("/api/mqtt", s.mqtt).Methods(http.MethodGet)
	}
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// Handler wraps the router with access logging to accessLog and panic
// recovery.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	var h http.Handler = s.Router()
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	if accessLog != nil {
		h = handlers.LoggingHandler(accessLog, h)
	}
	return h
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string, accessLog io.Writer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(accessLog),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http api: %w", err)
	}
}

// ── Handlers ─────────────────────────────────────────────────────────

type healthResponse struct {
	Status        string `json:"status"`
	MQTTConnected bool   `json:"mqtt_connected"`
}

type currentResponse struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	MQ135       float64 `json:"mq135_ppm"`
	MQ2         float64 `json:"mq2_ppm"`
	MQ7         float64 `json:"mq7_ppm"`
	Timestamp   string  `json:"timestamp"`
}

type snapshotResponse struct {
	Current       currentResponse            `json:"current"`
	Predictions   map[string]classify.Result `json:"predictions"`
	Counters      pipeline.Counters          `json:"counters"`
	HistoryLength int                        `json:"history_length"`
	HistoryCap    int                        `json:"history_cap"`
	MQTTConnected bool                       `json:"mqtt_connected"`
	MQTTError     string                     `json:"mqtt_error,omitempty"`
	Taken         time.Time                  `json:"taken"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Latest()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", MQTTConnected: snap.Connected})
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Latest()

	preds := make(map[string]classify.Result, len(sensor.Gases))
	for _, g := range sensor.Gases {
		preds[g.String()] = snap.Predictions.Get(g)
	}
	resp := snapshotResponse{
		Current: currentResponse{
			Temperature: snap.Current.Temperature,
			Humidity:    snap.Current.Humidity,
			MQ135:       snap.Current.MQ135,
			MQ2:         snap.Current.MQ2,
			MQ7:         snap.Current.MQ7,
			Timestamp:   snap.LastUpdate(),
		},
		Predictions:   preds,
		Counters:      snap.Counters,
		HistoryLength: len(snap.History),
		HistoryCap:    snap.HistoryCap,
		MQTTConnected: snap.Connected,
		Taken:         snap.Taken,
	}
	if snap.ConnectErr != nil {
		resp.MQTTError = snap.ConnectErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

type mqttResponse struct {
	ClientID  string            `json:"client_id"`
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// prediction returns the latest result of one sensor, addressed by key,
// payload field or title ("mq2", "mq2_ppm", "MQ-2").
func (s *Server) prediction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["sensor"]
	g, ok := sensor.ParseGas(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown sensor %q", name)})
		return
	}
	writeJSON(w, http.StatusOK, s.source.Latest().Predictions.Get(g))
}

func (s *Server) mqtt(w http.ResponseWriter, _ *http.Request) {
	st := s.broker.Stats()
	writeJSON(w, http.StatusOK, mqttResponse{
		ClientID:  s.broker.ID(),
		Connected: st.Connected,
		Published: st.Published,
		Errors:    st.Errors,
	})
}

func (s *Server) historyCSV(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Latest()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", store.ExportName(snap.Taken)))
	if err := store.WriteCSV(w, snap.History); err != nil {
		s.log.Warn("csv download failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
