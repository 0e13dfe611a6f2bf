package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nzlov/adaptivehz/internal/device"
	"github.com/nzlov/adaptivehz/internal/interaction"
	"github.com/nzlov/adaptivehz/internal/prefs"
	"github.com/nzlov/adaptivehz/internal/refresh"
	"github.com/nzlov/adaptivehz/internal/settings"
)

type fakeController struct {
	mu      sync.Mutex
	applied []refresh.Level
	err     error
}

func (c *fakeController) Apply(_ context.Context, l refresh.Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, l)
	return c.err
}

func (c *fakeController) ReadStatus(context.Context) refresh.Status {
	return refresh.Status{Vendor: device.Samsung, SettingKey: refresh.KeyRefreshMode, SettingValue: "0 (Normal/Min)", DisplayHz: 60}
}

type sinkRecorder struct {
	mu      sync.Mutex
	signals []interaction.Signal
}

func (s *sinkRecorder) Notify(sig interaction.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
}

type boosted bool

func (b boosted) Boosted() bool { return bool(b) }

type fixture struct {
	srv   *Server
	h     http.Handler
	ctrl  *fakeController
	prefs *prefs.Store
	sink  *sinkRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.yaml"), nil)
	require.NoError(t, err)
	f := &fixture{ctrl: &fakeController{}, prefs: p, sink: &sinkRecorder{}}
	f.srv = New(Deps{Controller: f.ctrl, Prefs: p, Signals: f.sink, State: boosted(true), SignalRPS: 1, SignalBurst: 2})
	f.h = f.srv.Handler()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.prefs.Update(func(p *prefs.Flags) { p.ADBGranted = true; p.DynamicEnabled = true }))

	rec := f.do(http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SAMSUNG", body["vendor"])
	assert.Equal(t, "refresh_rate_mode", body["setting_key"])
	assert.Equal(t, 60.0, body["display_hz"])
	assert.Equal(t, true, body["boosted"])
	setup := body["setup"].(map[string]any)
	assert.Equal(t, true, setup["adb_granted"])
	assert.Equal(t, false, setup["keep_alive_enabled"])
	assert.Equal(t, false, setup["complete"])
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/verify", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.prefs.Flags().ADBGranted)
	assert.Equal(t, []refresh.Level{refresh.Minimum}, f.ctrl.applied)
}

func TestVerify_PermissionMissing(t *testing.T) {
	f := newFixture(t)
	f.ctrl.err = settings.ErrPermissionDenied
	rec := f.do(http.MethodPost, "/v1/verify", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, f.prefs.Flags().ADBGranted)
}

func TestVerify_Unavailable(t *testing.T) {
	f := newFixture(t)
	f.ctrl.err = errors.New("settings: not found")
	rec := f.do(http.MethodPost, "/v1/verify", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/mode/adaptive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, prefs.Flags{DynamicEnabled: true, ADBGranted: true}, f.prefs.Flags())

	rec = f.do(http.MethodPost, "/v1/mode/maximum", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.prefs.Flags().DynamicEnabled)

	rec = f.do(http.MethodPost, "/v1/mode/minimum", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []refresh.Level{refresh.Minimum, refresh.Maximum, refresh.Minimum}, f.ctrl.applied)

	rec = f.do(http.MethodPost, "/v1/mode/turbo", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMode_PermissionMissing(t *testing.T) {
	f := newFixture(t)
	f.ctrl.err = settings.ErrPermissionDenied
	rec := f.do(http.MethodPost, "/v1/mode/adaptive", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	// the toggle sticks even when the write is refused
	assert.True(t, f.prefs.Flags().DynamicEnabled)
}

func TestKeepAlive(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPut, "/v1/keep-alive", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.prefs.Flags().KeepAliveEnabled)

	rec = f.do(http.MethodPut, "/v1/keep-alive", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignals(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/signals", `{"kind":"TYPE_VIEW_SCROLLED","package":"com.example.app"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.sink.signals, 1)
	assert.Equal(t, interaction.ViewScrolled, f.sink.signals[0].Kind)
	assert.Equal(t, "com.example.app", f.sink.signals[0].Package)

	rec = f.do(http.MethodPost, "/v1/signals", `{"kind":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/signals", `{"kind":"touch_start"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":404`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.h)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/status/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var body map[string]any
	require.NoError(t, conn.ReadJSON(&body))
	assert.Equal(t, "SAMSUNG", body["vendor"])
}

func TestIPLimiter_SweepsStale(t *testing.T) {
	l := newIPLimiter(1, 1)
	now := time.Unix(1000, 0)
	l.nowFunc = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))

	now = now.Add(2 * staleLimiterTTL)
	assert.True(t, l.allow("b"))
	_, ok := l.limiters["a"]
	assert.False(t, ok)
}
