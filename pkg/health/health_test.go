package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, handler http.HandlerFunc) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	code, body := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	h.AddLivenessCheck("db", time.Second, failing("connection refused"))
	c := h.checks[0]
	ctx := context.Background()

	c.run(ctx)
	c.run(ctx)
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below threshold")

	c.run(ctx)
	code, body = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing)
	h.AddReadinessCheck("redis", time.Second, failing("dial tcp: refused"))
	h.AddLivenessCheck("goroutines", time.Second, failing("too many"))

	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	assert.True(t, h.IsReady())
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)

	for _, c := range h.checks {
		c.run(context.Background())
		c.run(context.Background())
		c.run(context.Background())
	}
	assert.False(t, h.IsReady())
	code, body = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "redis")
	assert.NotContains(t, body.Checks, "postgres")
	assert.NotContains(t, body.Checks, "goroutines", "liveness failures stay off /readyz")

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestCheckRecovery(t *testing.T) {
	down := true
	h := New(WithThresholds(2, 2))
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	c := h.checks[0]
	ctx := context.Background()

	assert.False(t, c.run(ctx))
	assert.True(t, c.run(ctx))
	assert.False(t, c.healthy.Load())
	assert.EqualError(t, c.lastError(), "down")

	down = false
	assert.False(t, c.run(ctx))
	assert.True(t, c.run(ctx))
	assert.True(t, c.healthy.Load())
}

func TestStartLogsTransitions(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := New(WithLogger(zap.New(core)), WithThresholds(1, 1))
	h.AddReadinessCheck("redis", time.Second, failing("refused"))

	h.Start(context.Background(), 5*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Health check failing").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("a", time.Second, failing("err"))
	h.AddReadinessCheck("b", time.Second, passing)
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(context.Background()), "exceeds threshold")
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pinger{})(context.Background()))
	assert.Error(t, PingCheck(pinger{err: errors.New("down")})(context.Background()))
}

func TestStalenessCheck(t *testing.T) {
	ctx := context.Background()
	var last time.Time
	get := func() time.Time { return last }

	assert.NoError(t, StalenessCheck(get, time.Minute, time.Hour)(ctx), "within grace")
	assert.ErrorContains(t, StalenessCheck(get, time.Minute, 0)(ctx), "never ran")

	last = time.Now()
	assert.NoError(t, StalenessCheck(get, time.Minute, 0)(ctx))

	last = time.Now().Add(-2 * time.Minute)
	assert.ErrorContains(t, StalenessCheck(get, time.Minute, 0)(ctx), "exceeds")
}
