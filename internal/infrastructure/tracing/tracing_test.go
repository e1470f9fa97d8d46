package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("preview", zap.New(core))
	t.Cleanup(tracer.Close)
	return tracer, logs
}

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer, _ := newObserved(t)

	root, ctx := tracer.StartSpan(context.Background(), "render")
	child, ctx := tracer.StartSpan(ctx, "compile")

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(ctx))
	assert.Equal(t, root.TraceID, GetTraceID(ctx))
	assert.Contains(t, string(root.TraceID), "trc_")
	assert.Contains(t, string(root.SpanID), "spn_")
}

func TestSubmittedSpansAreLogged(t *testing.T) {
	tracer, logs := newObserved(t)

	ok, _ := tracer.StartSpan(context.Background(), "render")
	ok.Stage("normalize", time.Now())
	ok.Stage("mount", time.Now())
	ok.Finish()
	tracer.Submit(ok)

	failed, _ := tracer.StartSpan(context.Background(), "export")
	failed.SetError(errors.New("timed out"))
	failed.Finish()
	tracer.Submit(failed)

	tracer.Close()
	tracer.Submit(ok)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "render", entries[0].ContextMap()["operation"])
	stages, isMap := entries[0].ContextMap()["stages"].(map[string]any)
	require.True(t, isMap)
	assert.Contains(t, stages, "normalize")
	assert.Contains(t, stages, "mount")
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "timed out", entries[1].ContextMap()["error"])
	assert.Equal(t, 500, failed.Status)
	assert.Equal(t, []string{"normalize", "mount"}, []string{ok.Stages[0].Name, ok.Stages[1].Name})
}

func TestRecentKeepsNewestSpans(t *testing.T) {
	tracer, _ := newObserved(t)
	tracer.retain = 3

	for i := 0; i < 5; i++ {
		span, _ := tracer.StartSpan(context.Background(), "render")
		span.SetTag("n", strconv.Itoa(i))
		span.Finish()
		tracer.Submit(span)
	}
	other, _ := tracer.StartSpan(context.Background(), "GET /health")
	other.Finish()
	tracer.Submit(other)
	tracer.Close()

	all := tracer.Recent("")
	require.Len(t, all, 3)
	assert.Equal(t, "GET /health", all[0].Name)

	renders := tracer.Recent("render")
	require.Len(t, renders, 2)
	assert.Equal(t, "4", renders[0].Tags["n"])
	assert.Equal(t, "3", renders[1].Tags["n"])

	renders[0].Tags["n"] = "changed"
	assert.Equal(t, "4", tracer.Recent("render")[0].Tags["n"])
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObserved(t)

	var seen TraceID
	r := gin.New()
	r.Use(HTTPMiddleware(tracer))
	r.GET("/frame", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/frame", nil)
	req.Header.Set(HeaderTraceID, "trc_caller")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, TraceID("trc_caller"), seen)
	assert.Equal(t, "trc_caller", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))

	tracer.Close()
	require.Len(t, logs.All(), 1)
	assert.Equal(t, "GET /frame", logs.All()[0].ContextMap()["operation"])
}
