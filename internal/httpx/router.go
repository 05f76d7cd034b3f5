// Package httpx exposes the studio HTTP API and streaming endpoints.
package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/store"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/studio"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/ws"
)

const (
	rateWindowDefault  = time.Minute
	rateLimitInstall   = 6
	rateLimitRead      = 240
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
	defaultListLimit   = 50
)

// Router wires HTTP endpoints to the studio service.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	studio    *studio.Service
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	runLimit  int
	runWindow time.Duration
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies. The index handler serves
// the dashboard at /; dbHealth may be nil when no database is configured.
func NewRouter(logger *slog.Logger, svc *studio.Service, hub *ws.Hub, index http.Handler,
	limiter RateLimiter, runLimit int, runWindow time.Duration, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		studio: svc,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   limiter,
		runLimit:  runLimit,
		runWindow: runWindow,
		dbHealth:  dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.runLimit <= 0 {
		r.runLimit = 10
	}
	if r.runWindow <= 0 {
		r.runWindow = rateWindowDefault
	}
	r.initMetrics()
	r.register(index)
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register(index http.Handler) {
	if index != nil {
		r.mux.Handle("/", index)
	}
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/environment", r.audit("/api/environment", r.handleEnvironment))
	r.mux.HandleFunc("/api/install", r.audit("/api/install", r.withRateLimit("/api/install", rateLimitInstall, rateWindowDefault, r.handleInstall)))
	r.mux.HandleFunc("/api/runs", r.audit("/api/runs", r.handleRuns))
	r.mux.HandleFunc("/api/runs/", r.audit("/api/runs/", r.handleRunSubroutes))
	r.mux.HandleFunc("/api/screenshots", r.audit("/api/screenshots", r.handleScreenshots))
	r.mux.HandleFunc("/api/screenshots/", r.audit("/api/screenshots/", r.handleScreenshotDownload))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	payload := map[string]string{"status": "ok"}
	if env := r.studio.Environment(req.Context()); env.Valid {
		payload["toolchain"] = "ok"
	} else {
		// runs will be rejected until node appears, but the server itself
		// is healthy
		payload["toolchain"] = env.Reason
	}
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			payload["status"] = "degraded"
			payload["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, payload)
			return
		}
		payload["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleEnvironment(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, r.studio.Environment(req.Context()))
}

func (r *Router) handleInstall(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	res, err := r.studio.InstallDeps(req.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

func (r *Router) handleRuns(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.withRateLimit("/api/runs", r.runLimit, r.runWindow, r.handleStartRun)(w, req)
	case http.MethodGet:
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = defaultListLimit
		}
		runs, err := r.studio.ListRuns(req.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, runs)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleStartRun(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Kind      string `json:"kind"`
		TargetURL string `json:"target_url"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	run, err := r.studio.StartRun(req.Context(), strings.TrimSpace(payload.Kind), payload.TargetURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (r *Router) handleRunSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/runs/")
	parts := strings.Split(trimmed, "/")
	runID := parts[0]
	if runID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleGetRun(w, req, runID)
	case len(parts) == 2 && parts[1] == "events":
		r.handleRunEvents(w, req, runID)
	case len(parts) == 2 && parts[1] == "ws":
		r.handleRunWS(w, req, runID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	run, err := r.studio.GetRun(req.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunEvents streams run progress as Server-Sent Events. The current
// run state is emitted first so late subscribers see where the run stands.
func (r *Router) handleRunEvents(w http.ResponseWriter, req *http.Request, runID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	run, err := r.studio.GetRun(req.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(runID, client)
	defer func() {
		r.hub.Unregister(runID, client)
		client.Close()
	}()

	if snapshot, err := json.Marshal(ws.Event{Type: "status", RunID: runID, Line: "run " + run.Status, Data: run, At: time.Now().UTC()}); err == nil {
		if err := client.Send(snapshot); err != nil {
			return
		}
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleRunWS(w http.ResponseWriter, req *http.Request, runID string) {
	if _, err := r.studio.GetRun(req.Context(), runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(runID, client)
	go func() {
		defer func() {
			r.hub.Unregister(runID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleScreenshots(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	shots, err := r.studio.ListScreenshots()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, shots)
}

func (r *Router) handleScreenshotDownload(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(req.URL.Path, "/api/screenshots/")
	path, err := r.studio.ScreenshotPath(name)
	if err != nil {
		r.notFound(w)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, req, path)
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

// audit logs each request and records metrics once the handler finishes.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
		r.recordRequestMetrics(req.Method, route, status, duration)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
