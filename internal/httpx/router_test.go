package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/nodedeps"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/runner"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/script"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/store"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/store/memory"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/studio"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/toolchain"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/ws"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeNode writes a shell script that answers --version so the toolchain
// probe passes without a real Node.js install.
func fakeNode(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node")
	src := "#!/bin/sh\nif [ \"$1\" = \"--version\" ]; then echo v21.0.0; fi\nexit 0\n"
	if err := os.WriteFile(path, []byte(src), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

type routerFixture struct {
	router  *Router
	repo    *memory.Repository
	node    string
	workdir string
	shots   string
}

// brokenNode removes the fake node binary so the toolchain probe fails.
func (fx *routerFixture) brokenNode(t *testing.T) {
	t.Helper()
	if err := os.Remove(fx.node); err != nil {
		t.Fatal(err)
	}
}

func newTestRouter(t *testing.T, runLimit int, dbHealth func(context.Context) error) *routerFixture {
	t.Helper()
	logger := testLogger()
	node := fakeNode(t)
	workdir := t.TempDir()
	shots := t.TempDir()

	// node_modules present means dependencies count as installed
	if err := os.MkdirAll(filepath.Join(workdir, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}

	prober := toolchain.New(node, node, time.Second)
	installer, err := nodedeps.New(workdir, node, time.Minute, logger)
	if err != nil {
		t.Fatal(err)
	}
	gen := script.NewGenerator(script.Options{Headless: true})
	run := runner.New(node, workdir, time.Minute, logger)
	repo := memory.New()
	hub := ws.NewHub()
	t.Cleanup(hub.Shutdown)

	svc := studio.New(prober, installer, gen, run, repo, hub, shots, time.Minute, logger)
	r := NewRouter(logger, svc, hub, nil, nil, runLimit, time.Minute, dbHealth)
	t.Cleanup(r.Close)
	return &routerFixture{router: r, repo: repo, node: node, workdir: workdir, shots: shots}
}

func doRequest(t *testing.T, r *Router, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthzWithoutDatabase(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("payload = %v", payload)
	}
	if payload["toolchain"] != "ok" {
		t.Fatalf("toolchain component = %q", payload["toolchain"])
	}
}

func TestHealthzReportsMissingToolchain(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	fx.brokenNode(t)
	rec := doRequest(t, fx.router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("payload = %v", payload)
	}
	if payload["toolchain"] == "" || payload["toolchain"] == "ok" {
		t.Fatalf("toolchain component = %q", payload["toolchain"])
	}
}

func TestHealthzDegradedDatabase(t *testing.T) {
	fx := newTestRouter(t, 10, func(context.Context) error { return errors.New("connection refused") })
	rec := doRequest(t, fx.router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "degraded" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestEnvironmentEndpoint(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodGet, "/api/environment", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var env toolchain.Environment
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if !env.Valid || env.NodeVersion != "v21.0.0" {
		t.Fatalf("environment = %+v", env)
	}
}

func TestListRunsEmpty(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("body = %q", body)
	}
}

func TestGetRunNotFound(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodGet, "/api/runs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStartRunAccepted(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodPost, "/api/runs", `{"kind":"default"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var run store.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.ID == "" || run.Status != store.StatusPending {
		t.Fatalf("run = %+v", run)
	}

	got := doRequest(t, fx.router, http.MethodGet, "/api/runs/"+run.ID, "")
	if got.Code != http.StatusOK {
		t.Fatalf("status = %d", got.Code)
	}
}

func TestStartRunInvalidBody(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodPost, "/api/runs", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStartRunInvalidKind(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodPost, "/api/runs", `{"kind":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStartRunRateLimited(t *testing.T) {
	fx := newTestRouter(t, 1, nil)
	first := doRequest(t, fx.router, http.MethodPost, "/api/runs", `{"kind":"default"}`)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first status = %d", first.Code)
	}
	second := doRequest(t, fx.router, http.MethodPost, "/api/runs", `{"kind":"default"}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("limit header = %q", second.Header().Get("X-RateLimit-Limit"))
	}
	if second.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining header = %q", second.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRunsMethodNotAllowed(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodDelete, "/api/runs", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestScreenshotListAndDownload(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	if err := os.WriteFile(filepath.Join(fx.shots, "capture.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fx.shots, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	list := doRequest(t, fx.router, http.MethodGet, "/api/screenshots", "")
	if list.Code != http.StatusOK {
		t.Fatalf("status = %d", list.Code)
	}
	var shots []studio.Screenshot
	if err := json.Unmarshal(list.Body.Bytes(), &shots); err != nil {
		t.Fatal(err)
	}
	if len(shots) != 1 || shots[0].Name != "capture.png" {
		t.Fatalf("shots = %+v", shots)
	}

	dl := doRequest(t, fx.router, http.MethodGet, "/api/screenshots/capture.png", "")
	if dl.Code != http.StatusOK {
		t.Fatalf("download status = %d", dl.Code)
	}
	if ct := dl.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestScreenshotDownloadRejectsBadNames(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	for _, target := range []string{
		"/api/screenshots/missing.png",
		"/api/screenshots/sub/capture.png",
		"/api/screenshots/capture.txt",
	} {
		rec := doRequest(t, fx.router, http.MethodGet, target, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", target, rec.Code)
		}
	}
}

func TestRunEventsUnknownRun(t *testing.T) {
	fx := newTestRouter(t, 10, nil)
	rec := doRequest(t, fx.router, http.MethodGet, "/api/runs/nope/events", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	if ip := clientIP(req); ip != "10.1.2.3" {
		t.Fatalf("ip = %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("forwarded ip = %q", ip)
	}
}
