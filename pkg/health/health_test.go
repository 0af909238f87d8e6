package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func get(t *testing.T, h http.HandlerFunc) (int, probeBody) {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body probeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func pass(context.Context) error { return nil }

func (r *Registry) evaluateAll(n int) {
	for range n {
		for _, p := range r.probes {
			p.evaluate(context.Background())
		}
	}
}

func TestLiveEndpoint(t *testing.T) {
	r := New()
	r.Register(Liveness, "goroutines", pass, Options{})
	r.Register(Liveness, "postgres", fail("connection refused"), Options{})
	r.Register(Readiness, "redis", fail("ignored on livez"), Options{})

	code, body := get(t, r.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "probes start passing")
	assert.Equal(t, "ok", body.Status)

	r.evaluateAll(2)
	code, _ = get(t, r.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below failure threshold")

	r.evaluateAll(1)
	code, body = get(t, r.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"postgres": "connection refused"}, body.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	r := New()
	r.Register(Readiness, "postgres", pass, Options{})

	code, body := get(t, r.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_gate")
	assert.False(t, r.Ready())

	r.MarkReady(true)
	code, body = get(t, r.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body.Checks)
	assert.True(t, r.Ready())

	r.MarkReady(false)
	code, _ = get(t, r.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestProbeRecovery(t *testing.T) {
	var healthy atomic.Bool
	r := New()
	r.MarkReady(true)
	r.Register(Readiness, "redis", func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("dial tcp: refused")
	}, Options{FailAfter: 1, RecoverAfter: 2})

	r.evaluateAll(1)
	require.False(t, r.Ready())
	_, body := get(t, r.ReadyEndpoint)
	assert.Equal(t, "dial tcp: refused", body.Checks["redis"])

	healthy.Store(true)
	r.evaluateAll(1)
	assert.False(t, r.Ready(), "one success is below the recovery threshold")
	r.evaluateAll(1)
	assert.True(t, r.Ready())
}

func TestProbeTimeout(t *testing.T) {
	r := New()
	r.Register(Liveness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{Timeout: 10 * time.Millisecond, FailAfter: 1})

	r.evaluateAll(1)
	code, body := get(t, r.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks["slow"], "deadline exceeded")
}

func TestRunAndStop(t *testing.T) {
	var calls atomic.Int32
	r := New()
	r.Register(Liveness, "counter", func(context.Context) error {
		calls.Add(1)
		return nil
	}, Options{})

	r.Run(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	r.Stop()
	r.Stop()
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Goroutines(1_000_000)(ctx))
	assert.Error(t, Goroutines(0)(ctx))

	assert.NoError(t, GCPause(time.Hour)(ctx))

	assert.NoError(t, Ping("postgres", pass)(ctx))
	err := Ping("redis", fail("refused"))(ctx)
	require.Error(t, err)
	assert.Equal(t, "ping redis: refused", err.Error())
}
