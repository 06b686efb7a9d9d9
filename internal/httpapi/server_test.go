package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voiced/pkg/types"
)

type fakeService struct {
	ready  bool
	status types.StatusResponse
}

func (f *fakeService) Status() types.StatusResponse { return f.status }

func (f *fakeService) Ready(ctx context.Context) bool {
	if _, ok := ctx.Deadline(); !ok {
		return false
	}
	return f.ready
}

func TestHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(&fakeService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestReadyz(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rr.Code)
	}
	svc.ready = true
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", rr.Code)
	}
}

func TestStatus(t *testing.T) {
	svc := &fakeService{status: types.StatusResponse{
		RunID:  "run-1",
		Stage:  "launch",
		Device: &types.DeviceStatus{Device: "cpu", Runtime: "cpu", Source: "probe"},
		Warmup: &types.WarmupStatus{Status: "failed", Reason: "no weights"},
	}}
	rr := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type %q", ct)
	}
	var got types.StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.Device == nil || got.Device.Device != "cpu" || got.Warmup.Reason != "no weights" {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(&fakeService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("code %d", rr.Code)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil || e.Code != http.StatusNotFound {
		t.Fatalf("error body: %q", rr.Body.String())
	}
}

func TestCORS_OptIn(t *testing.T) {
	t.Cleanup(func() { SetCORSOptions(false, nil, nil, nil) })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://dash.test")
	rr := httptest.NewRecorder()
	NewMux(&fakeService{}).ServeHTTP(rr, req)
	if v := rr.Header().Get("Access-Control-Allow-Origin"); v != "" {
		t.Fatalf("CORS disabled but got %q", v)
	}

	SetCORSOptions(true, []string{"http://dash.test"}, nil, nil)
	rr = httptest.NewRecorder()
	NewMux(&fakeService{}).ServeHTTP(rr, req)
	if v := rr.Header().Get("Access-Control-Allow-Origin"); v != "http://dash.test" {
		t.Fatalf("expected allowed origin, got %q", v)
	}
}

func TestServeListener_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, ln, NewMux(&fakeService{})) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz over tcp: %d", resp.StatusCode)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
