package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

// Trace header names
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// DefaultRetain is how many finished spans a tracer keeps for Recent.
const DefaultRetain = 64

// TraceID represents a unique trace identifier
type TraceID string

// SpanID represents a unique span identifier
type SpanID string

// Stage is one timed step of a render, in the order it ran.
type Stage struct {
	Name    string        `json:"name"`
	Elapsed time.Duration `json:"elapsed"`
}

// Note is a timestamped remark within a span.
type Note struct {
	At      time.Time      `json:"at"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Record is the data of one operation in a trace.
type Record struct {
	TraceID  TraceID           `json:"traceId"`
	SpanID   SpanID            `json:"spanId"`
	ParentID SpanID            `json:"parentId,omitempty"`
	Name     string            `json:"name"`
	Start    time.Time         `json:"start"`
	Duration time.Duration     `json:"duration"`
	Tags     map[string]string `json:"tags,omitempty"`
	Stages   []Stage           `json:"stages,omitempty"`
	Notes    []Note            `json:"notes,omitempty"`
	Status   int               `json:"status,omitempty"`
	Err      string            `json:"error,omitempty"`
}

// Span is a Record being written. Its methods are safe for concurrent use.
type Span struct {
	Record

	mu sync.Mutex
}

// Tracer writes finished spans to the log and keeps the most recent ones.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	recentMu sync.Mutex
	recent   []*Span
	retain   int
}

// New creates a tracer that retains DefaultRetain spans.
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1000),
		done:    make(chan struct{}),
		retain:  DefaultRetain,
	}

	go t.collectSpans()

	return t
}

// StartSpan creates a new span, continuing the trace carried by ctx
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = TraceID(id.Default().GenerateWithPrefix(id.TracePrefix))
	}

	span := &Span{Record: Record{
		TraceID:  traceID,
		SpanID:   SpanID(id.Default().GenerateWithPrefix(id.SpanPrefix)),
		ParentID: GetSpanID(ctx),
		Name:     name,
		Start:    time.Now(),
		Tags:     make(map[string]string),
	}}

	return span, withIDs(ctx, traceID, span.SpanID)
}

// Finish marks the span as complete
func (s *Span) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Duration = time.Since(s.Start)
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tags[key] = value
}

// Stage appends a pipeline stage that began at start and ends now.
func (s *Span) Stage(name string, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stages = append(s.Stages, Stage{Name: name, Elapsed: time.Since(start)})
}

// SetError records an error in the span
func (s *Span) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err.Error()
	if s.Status == 0 {
		s.Status = 500
	}
}

// SetStatus sets the HTTP status code
func (s *Span) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = code
}

// Log adds a note to the span
func (s *Span) Log(message string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notes = append(s.Notes, Note{At: time.Now(), Message: message, Fields: fields})
}

// snapshot copies the record for readers outside the collector.
func (s *Span) snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.Record
	cp.Tags = make(map[string]string, len(s.Tags))
	for k, v := range s.Tags {
		cp.Tags[k] = v
	}
	cp.Stages = append([]Stage(nil), s.Stages...)
	cp.Notes = append([]Note(nil), s.Notes...)
	return cp
}

type stageList []Stage

func (l stageList) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, st := range l {
		enc.AddDuration(st.Name, st.Elapsed)
	}
	return nil
}

func (t *Tracer) collectSpans() {
	defer close(t.done)
	for span := range t.spans {
		snap := span.snapshot()
		t.log(&snap)
		t.keep(span)
	}
}

func (t *Tracer) log(span *Record) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", t.service),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	if len(span.Tags) > 0 {
		fields = append(fields, zap.Any("tags", span.Tags))
	}
	if len(span.Stages) > 0 {
		fields = append(fields, zap.Object("stages", stageList(span.Stages)))
	}
	if len(span.Notes) > 0 {
		fields = append(fields, zap.Int("notes", len(span.Notes)))
	}

	if span.Err != "" {
		fields = append(fields, zap.String("error", span.Err))
		t.logger.Warn("span completed with error", fields...)
	} else {
		t.logger.Debug("span completed", fields...)
	}
}

func (t *Tracer) keep(span *Span) {
	t.recentMu.Lock()
	defer t.recentMu.Unlock()
	t.recent = append(t.recent, span)
	if over := len(t.recent) - t.retain; over > 0 {
		t.recent = append(t.recent[:0:0], t.recent[over:]...)
	}
}

// Recent returns copies of the retained spans named name, newest first. An
// empty name matches every span.
func (t *Tracer) Recent(name string) []Record {
	t.recentMu.Lock()
	spans := append([]*Span(nil), t.recent...)
	t.recentMu.Unlock()

	out := make([]Record, 0, len(spans))
	for i := len(spans) - 1; i >= 0; i-- {
		if name == "" || spans[i].Name == name {
			out = append(out, spans[i].snapshot())
		}
	}
	return out
}

// Submit sends a span to the collector. It never blocks; spans are dropped
// when the buffer is full or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
		)
	}
}

// Close stops the collector after draining buffered spans
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()
	<-t.done
}

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

func withIDs(ctx context.Context, traceID TraceID, spanID SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) TraceID {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	return traceID
}

// GetSpanID retrieves the span ID from context
func GetSpanID(ctx context.Context) SpanID {
	spanID, _ := ctx.Value(spanIDKey).(SpanID)
	return spanID
}
