package jobmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/urlcleaner/internal/cache"
)

func TestJobMetricsRecording(t *testing.T) {
	registry := prometheus.NewRegistry()
	jm := NewJobMetricsWithRegistry("urlclean", registry, zap.NewNop())

	jm.RecordTask("ok", 5*time.Millisecond)
	jm.RecordTask("ok", 3*time.Millisecond)
	jm.RecordTask("clean_error", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(jm.tasksTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(jm.tasksTotal.WithLabelValues("clean_error")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var jm *JobMetrics
	jm.RecordTask("ok", time.Millisecond)
	jm.RecordCacheHit("redirect")
	jm.RecordCacheMiss("redirect")
	jm.RecordCacheWrite("redirect")
}

func TestInstrumentedStoreCountsHitsAndMisses(t *testing.T) {
	registry := prometheus.NewRegistry()
	jm := NewJobMetricsWithRegistry("urlclean", registry, zap.NewNop())
	store := NewInstrumentedStore(cache.NewMemStore(), jm)

	keys := cache.EntryKeys{Subject: "redirect", Key: "https://t.co/x"}
	entry, err := store.Read(context.Background(), keys)
	require.NoError(t, err)
	assert.Nil(t, entry)

	value := "https://long.example.org/"
	require.NoError(t, store.Write(context.Background(), cache.NewEntry{
		Subject: "redirect",
		Key:     "https://t.co/x",
		Value:   &value,
	}))

	entry, err = store.Read(context.Background(), keys)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, float64(1), testutil.ToFloat64(jm.cacheMissesTotal.WithLabelValues("redirect")))
	assert.Equal(t, float64(1), testutil.ToFloat64(jm.cacheHitsTotal.WithLabelValues("redirect")))
	assert.Equal(t, float64(1), testutil.ToFloat64(jm.cacheWritesTotal.WithLabelValues("redirect")))
}

func TestMetricsHTTPEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	jm := NewJobMetricsWithRegistry("urlclean", registry, zap.NewNop())
	jm.RecordTask("ok", time.Millisecond)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	ctx.Request.Header.SetMethod("GET")
	jm.ServeHTTP(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.Contains(t, body, "urlclean_job_tasks_total")
}
