package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultStreamMaxLen  = 10000
	defaultStreamQueue   = 256
	defaultStreamTimeout = 2 * time.Second
)

// streamWriter is the subset of the Redis client used by the sink.
type streamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamConfig configures a RedisStreamSink.
type RedisStreamConfig struct {
	Stream    string
	MaxLen    int64 // Approximate stream cap, default 10000
	QueueSize int   // Buffered events before dropping, default 256
	Timeout   time.Duration
}

// RedisStreamSink appends events to a Redis stream from a background goroutine.
// Emit never blocks: when the queue is full the event is dropped with a warning.
type RedisStreamSink struct {
	client  streamWriter
	cfg     RedisStreamConfig
	logger  *zap.Logger
	queue   chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewRedisStreamSink starts a sink writing to cfg.Stream. Call Close to flush.
func NewRedisStreamSink(client *redis.Client, cfg RedisStreamConfig, logger *zap.Logger) *RedisStreamSink {
	return newRedisStreamSink(client, cfg, logger)
}

func newRedisStreamSink(client streamWriter, cfg RedisStreamConfig, logger *zap.Logger) *RedisStreamSink {
	if cfg.Stream == "" {
		cfg.Stream = "datagenie:events"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultStreamMaxLen
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultStreamQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultStreamTimeout
	}

	s := &RedisStreamSink{
		client: client,
		cfg:    cfg,
		logger: logger.Named("redis-sink"),
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go s.processQueue()
	return s
}

// Emit implements Sink.
func (s *RedisStreamSink) Emit(e Event) {
	select {
	case s.queue <- e.Clone():
	default:
		s.dropped.Add(1)
		s.logger.Warn("Event queue full, dropping event",
			zap.String("event", e.Name()),
			zap.String("request_id", e.String(FieldRequestID)))
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (s *RedisStreamSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits until queued events are written.
func (s *RedisStreamSink) Close() {
	close(s.queue)
	<-s.done
}

func (s *RedisStreamSink) processQueue() {
	defer close(s.done)

	for e := range s.queue {
		s.write(e)
	}
}

func (s *RedisStreamSink) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.Stream,
		MaxLen: s.cfg.MaxLen,
		Approx: true,
		ID:     "*",
		Values: streamValues(e),
	}).Err()
	if err != nil {
		s.logger.Error("Failed to append event to stream",
			zap.String("stream", s.cfg.Stream),
			zap.String("event", e.Name()),
			zap.Error(err))
	}
}

// streamValues flattens an event into string fields with a fresh event id.
func streamValues(e Event) map[string]any {
	values := make(map[string]any, len(e)+1)
	values["event_id"] = ulid.Make().String()
	for k, v := range e {
		values[k] = scalarString(v)
	}
	return values
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Duration:
		return strconv.FormatFloat(Millis(x), 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
