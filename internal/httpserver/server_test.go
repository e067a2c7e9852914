package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/dropbeam/dropbeam/internal/config"
	"github.com/dropbeam/dropbeam/internal/identity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()
	s := New(cfg, testLogger(), BuildInfo{Commit: "abc123", BuildTime: "2024-06-01T00:00:00Z"})
	ts := httptest.NewServer(s.Mux())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, config.Config{})
	var body map[string]any
	resp := getJSON(t, ts.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
}

func TestReadyz_NotReadyUntilServing(t *testing.T) {
	_, ts := newTestServer(t, config.Config{})
	resp := getJSON(t, ts.URL+"/readyz", nil)
	// The test server bypasses Serve, so readiness was never flipped on.
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before Serve", resp.StatusCode)
	}
}

func TestVersion(t *testing.T) {
	_, ts := newTestServer(t, config.Config{})
	var body BuildInfo
	getJSON(t, ts.URL+"/version", &body)
	if body.Commit != "abc123" {
		t.Fatalf("version = %+v", body)
	}
}

func TestICEServers_Static(t *testing.T) {
	cfg := config.Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.example.com:3478"}},
		},
	}
	_, ts := newTestServer(t, cfg)

	var body struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	getJSON(t, ts.URL+"/webrtc/ice", &body)
	if len(body.ICEServers) != 1 || body.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("iceServers = %+v", body.ICEServers)
	}
}

func TestICEServers_EmptyIsArrayNotNull(t *testing.T) {
	_, ts := newTestServer(t, config.Config{})
	resp, err := http.Get(ts.URL + "/webrtc/ice")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"iceServers":[]`) {
		t.Fatalf("body = %s, want empty array", raw)
	}
}

func TestICEServers_TURNRESTCredentials(t *testing.T) {
	cfg := config.Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.example.com"}},
			{URLs: []string{"turn:turn.example.com"}},
		},
		TURNRESTSharedSecret:   "s3cret",
		TURNRESTTTLSeconds:     3600,
		TURNRESTUsernamePrefix: "dropbeam",
	}
	_, ts := newTestServer(t, cfg)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/webrtc/ice", nil)
	req.AddCookie(&http.Cookie{Name: identity.CookieName, Value: "peer-77"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		ICEServers []struct {
			URLs       []string `json:"urls"`
			Username   string   `json:"username"`
			Credential string   `json:"credential"`
		} `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.ICEServers) != 2 {
		t.Fatalf("iceServers = %+v", body.ICEServers)
	}

	stun, turn := body.ICEServers[0], body.ICEServers[1]
	if stun.Username != "" || stun.Credential != "" {
		t.Error("stun entry should not carry TURN credentials")
	}
	if turn.Username == "" || turn.Credential == "" {
		t.Fatal("turn entry missing injected credentials")
	}
	if !strings.HasSuffix(turn.Username, ":dropbeam:peer-77") {
		t.Errorf("turn username = %q, want coturn <expiry>:dropbeam:peer-77", turn.Username)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	s := New(config.Config{}, testLogger(), BuildInfo{})
	handler := chain(s.Mux(), requestIDMiddleware())
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing generated X-Request-ID")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-ID"); got != "caller-supplied" {
		t.Fatalf("X-Request-ID = %q, want caller value echoed", got)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	ts := httptest.NewServer(chain(mux, recoverMiddleware(testLogger())))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/boom")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}
