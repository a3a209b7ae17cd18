package healthprobe

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.HandlerFunc) (int, HealthResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	return w.Code, resp
}

func TestNew(t *testing.T) {
	hc := New()

	require.NotNil(t, hc)
	assert.WithinDuration(t, time.Now(), hc.startTime, time.Second)
	assert.False(t, hc.ready.Load(), "not ready by default")
}

func TestSetReady_Toggle(t *testing.T) {
	hc := New()

	hc.SetReady(true)
	assert.True(t, hc.ready.Load())

	hc.SetReady(false)
	assert.False(t, hc.ready.Load())
}

func TestHealth_AlwaysReturnsOK(t *testing.T) {
	for _, ready := range []bool{false, true} {
		hc := New()
		hc.SetReady(ready)
		hc.AddCheck("feed", func() error { return errors.New("down") })

		code, resp := serve(t, hc.Health())
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", resp.Status)
		assert.NotEmpty(t, resp.Uptime)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name        string
		ready       bool
		checks      map[string]Check
		wantStatus  int
		wantBody    string
		wantMessage string
	}{
		{
			name:        "not-ready-initially",
			wantStatus:  http.StatusServiceUnavailable,
			wantBody:    "not_ready",
			wantMessage: "application is starting",
		},
		{
			name:       "ready-without-checks",
			ready:      true,
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name:  "ready-with-passing-checks",
			ready: true,
			checks: map[string]Check{
				"feed": func() error { return nil },
			},
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name:  "failing-check",
			ready: true,
			checks: map[string]Check{
				"storage": func() error { return nil },
				"feed":    func() error { return errors.New("feed disconnected") },
			},
			wantStatus:  http.StatusServiceUnavailable,
			wantBody:    "not_ready",
			wantMessage: "feed check failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := New()
			hc.SetReady(tt.ready)
			for name, check := range tt.checks {
				hc.AddCheck(name, check)
			}

			code, resp := serve(t, hc.Ready())
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Equal(t, tt.wantMessage, resp.Message)
			if tt.name == "failing-check" {
				assert.Equal(t, map[string]string{"feed": "feed disconnected"}, resp.Checks)
			}
		})
	}
}

func TestAddCheck_Replaces(t *testing.T) {
	hc := New()
	hc.SetReady(true)

	hc.AddCheck("feed", func() error { return errors.New("down") })
	code, _ := serve(t, hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, code)

	hc.AddCheck("feed", func() error { return nil })
	code, _ = serve(t, hc.Ready())
	assert.Equal(t, http.StatusOK, code)
}
