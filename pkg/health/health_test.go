package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probeEndpoint(fn http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestReadyEndpoint_NotReadyByDefault(t *testing.T) {
	h := New()

	rec := probeEndpoint(h.ReadyEndpoint)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ready")
}

func TestReadyEndpoint_ReadyAfterSetReady(t *testing.T) {
	h := New()
	h.SetReady(true)

	rec := probeEndpoint(h.ReadyEndpoint)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestLiveEndpoint_HealthyUntilThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		return errors.New("down")
	})

	// Below the failure threshold the probe still reports healthy.
	p := h.liveness[0]
	p.run(context.Background())
	p.run(context.Background())
	assert.Equal(t, http.StatusOK, probeEndpoint(h.LiveEndpoint).Code)

	p.run(context.Background())
	rec := probeEndpoint(h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "down")
}

func TestProbe_RecoversImmediately(t *testing.T) {
	fail := true
	p := newProbe("db", time.Second, func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})

	for range failureThreshold {
		p.run(context.Background())
	}
	healthy, _ := p.status()
	require.False(t, healthy)

	fail = false
	p.run(context.Background())
	healthy, lastErr := p.status()
	assert.True(t, healthy)
	assert.NoError(t, lastErr)
}

func TestIsReady_GatesOnChecks(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("db", time.Second, func(context.Context) error {
		return errors.New("unreachable")
	})

	require.True(t, h.IsReady())

	for range failureThreshold {
		h.readiness[0].run(context.Background())
	}
	assert.False(t, h.IsReady())
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
