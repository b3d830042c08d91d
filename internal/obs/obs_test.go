package obs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHealthHandler(t *testing.T) {
	ok := HealthHandler(func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	ok(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	bad := HealthHandler(func(context.Context) error { return errors.New("db down") })
	rec = httptest.NewRecorder()
	bad(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTokenRefTruncates(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("x", TokenRef("ba7816bf8f01cfea414140de5dae2223"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ba7816bf8f01", logs.All()[0].ContextMap()["token_ref"])
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "loud", App: "tokengate"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestWithTrace_NoSpanIsPassthrough(t *testing.T) {
	l := zap.NewNop()
	assert.Same(t, l, WithTrace(context.Background(), l))
	assert.Nil(t, WithTrace(context.Background(), nil))
}
