package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEvent_Accessors(t *testing.T) {
	e := NewEvent(EventRoutingDecision, "req-1")
	e[FieldLatencyMS] = 12.5
	e[FieldAttempt] = 2

	assert.Equal(t, EventRoutingDecision, e.Name())
	assert.Equal(t, "req-1", e.String(FieldRequestID))
	assert.NotEmpty(t, e.String(FieldTimestamp))

	ms, ok := e.Float(FieldLatencyMS)
	assert.True(t, ok)
	assert.Equal(t, 12.5, ms)

	n, ok := e.Float(FieldAttempt)
	assert.True(t, ok)
	assert.Equal(t, 2.0, n)

	_, ok = e.Float(FieldRequestID)
	assert.False(t, ok)
}

func TestMultiSink_CopiesPerSink(t *testing.T) {
	var a, b RecorderSink
	mutate := SinkFunc(func(e Event) { e["mutated"] = true })

	sink := Combine(&a, nil, mutate, &b)
	sink.Emit(NewEvent(EventStage, "r"))

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	_, mutated := b.Events()[0]["mutated"]
	assert.False(t, mutated)
}

func TestCombine(t *testing.T) {
	assert.IsType(t, NopSink{}, Combine())
	var r RecorderSink
	assert.Same(t, &r, Combine(nil, &r))
}

func TestRecorderSink_Filters(t *testing.T) {
	var r RecorderSink
	r.Emit(NewEvent(EventStage, "a"))
	r.Emit(NewEvent(EventRoutingDecision, "a"))
	r.Emit(NewEvent(EventStage, "b"))

	assert.Len(t, r.Named(EventStage), 2)
	assert.Len(t, r.ForRequest("a"), 2)
	assert.Len(t, r.ForRequest("c"), 0)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core), zapcore.DebugLevel)

	ok := NewEvent(EventStage, "r1")
	ok[FieldStage] = "extract"
	sink.Emit(ok)

	failed := NewEvent(EventRoutingDecision, "r1")
	failed[FieldError] = "timeout"
	sink.Emit(failed)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, EventStage, entries[0].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "extract", entries[0].ContextMap()[FieldStage])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestLogSink_RespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core), zapcore.DebugLevel)
	sink.Emit(NewEvent(EventStage, "r1"))
	assert.Equal(t, 0, logs.Len())
}

type fakeStream struct {
	mu   sync.Mutex
	args []*redis.XAddArgs
	err  error
	gate chan struct{}
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func (f *fakeStream) calls() []*redis.XAddArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*redis.XAddArgs(nil), f.args...)
}

func TestRedisStreamSink_WritesEvents(t *testing.T) {
	stream := &fakeStream{}
	sink := newRedisStreamSink(stream, RedisStreamConfig{Stream: "events"}, zap.NewNop())

	e := NewEvent(EventRoutingDecision, "req-9")
	e[FieldAttempt] = 1
	e[FieldLatencyMS] = 3.5
	e["ok"] = true
	sink.Emit(e)
	sink.Close()

	calls := stream.calls()
	require.Len(t, calls, 1)
	args := calls[0]
	assert.Equal(t, "events", args.Stream)
	assert.Equal(t, int64(defaultStreamMaxLen), args.MaxLen)
	assert.True(t, args.Approx)
	assert.Equal(t, "*", args.ID)

	values, ok := args.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "req-9", values[FieldRequestID])
	assert.Equal(t, "1", values[FieldAttempt])
	assert.Equal(t, "3.5", values[FieldLatencyMS])
	assert.Equal(t, "true", values["ok"])
	assert.Len(t, values["event_id"], 26)
}

func TestRedisStreamSink_DropsWhenFull(t *testing.T) {
	stream := &fakeStream{gate: make(chan struct{})}
	core, logs := observer.New(zapcore.WarnLevel)
	sink := newRedisStreamSink(stream, RedisStreamConfig{QueueSize: 1}, zap.New(core))

	// The first event is picked up by the writer and blocks on the gate; the
	// second fills the queue; later events must be dropped without blocking.
	sink.Emit(NewEvent(EventStage, "a"))
	require.Eventually(t, func() bool { return len(sink.queue) == 0 }, time.Second, time.Millisecond)
	sink.Emit(NewEvent(EventStage, "b"))
	sink.Emit(NewEvent(EventStage, "c"))
	sink.Emit(NewEvent(EventStage, "d"))

	assert.Equal(t, int64(2), sink.Dropped())
	assert.Equal(t, 2, logs.FilterMessage("Event queue full, dropping event").Len())

	close(stream.gate)
	sink.Close()
	assert.Len(t, stream.calls(), 2)
}

func TestRedisStreamSink_LogsWriteErrors(t *testing.T) {
	stream := &fakeStream{err: errors.New("READONLY")}
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := newRedisStreamSink(stream, RedisStreamConfig{}, zap.New(core))

	sink.Emit(NewEvent(EventStage, "a"))
	sink.Close()

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "datagenie:events", logs.All()[0].ContextMap()["stream"])
}

func TestMetricsSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	sink := NewMetricsSink(m)

	decision := NewEvent(EventRoutingDecision, "r")
	decision[FieldBackend] = "local"
	decision[FieldReason] = "default_local"
	decision[FieldOutcome] = "ok"
	decision[FieldLatencyMS] = 250.0
	sink.Emit(decision)
	sink.Emit(decision)

	done := NewEvent(EventRequestDone, "r")
	done[FieldStatus] = "rejected"
	done[FieldCode] = "destructive_operation"
	sink.Emit(done)

	stage := NewEvent(EventStage, "r")
	stage[FieldStage] = "validate"
	stage[FieldLatencyMS] = 1.0
	sink.Emit(stage)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoutingDecisions.WithLabelValues("local", "default_local", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationOutcomes.WithLabelValues("rejected", "destructive_operation")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BackendLatency))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageLatency))
}

func TestStartSpan(t *testing.T) {
	ctx, finish := StartSpan(context.Background(), "pipeline.extract")
	require.NotNil(t, ctx)
	Annotate(ctx)
	finish(errors.New("boom"))
}
