package event

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// threeSubscribers подписывает S1 (успех), S2 (сбой "E2") и S3 (успех).
func threeSubscribers(ch *Channel[CountingValue]) {
	rec := &recorder{}
	ch.Subscribe(record[CountingValue](rec, "s1", nil), WithName[CountingValue]("s1"))
	ch.Subscribe(record[CountingValue](rec, "s2", errors.New("E2")), WithName[CountingValue]("s2"))
	ch.Subscribe(record[CountingValue](rec, "s3", nil), WithName[CountingValue]("s3"))
}

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()

	newChannel := func(t *testing.T) (*Channel[CountingValue], *bytes.Buffer) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		ch, err := NewChannel("counting.logged", WithLogger[CountingValue](logger))
		require.NoError(t, err)
		threeSubscribers(ch)
		return ch, &buf
	}

	t.Run("проглоченная ошибка", func(t *testing.T) {
		t.Parallel()
		ch, buf := newChannel(t)
		_, err := ch.Raise(context.Background(), CountingValue{ID: "c-1", Value: 100}, WithPolicy(ContinueOnFailure))
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, out, "рассылка события")
		assert.Contains(t, out, `"payload_type":"CountingValue"`)
		assert.Contains(t, out, "ошибка обработчика проглочена")
		assert.Contains(t, out, `"handler_name":"s2"`)
		assert.Contains(t, out, "рассылка завершена")
		assert.Contains(t, out, `"swallowed":1`)
	})

	t.Run("прерванная рассылка", func(t *testing.T) {
		t.Parallel()
		ch, buf := newChannel(t)
		_, err := ch.Raise(context.Background(), CountingValue{ID: "c-2", Value: 100})
		require.Error(t, err)

		out := buf.String()
		assert.Contains(t, out, "ошибка обработки события")
		assert.Contains(t, out, "рассылка прервана сбоем обработчика")
		assert.NotContains(t, out, `"handler_name":"s3"`, "S3 не вызывался")
	})
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	ch, err := NewChannel("counting.metered", WithMeterProvider[CountingValue](mp))
	require.NoError(t, err)
	threeSubscribers(ch)

	_, err = ch.Raise(context.Background(), CountingValue{Value: 1}, WithPolicy(ContinueOnFailure))
	require.NoError(t, err)
	_, err = ch.Raise(context.Background(), CountingValue{Value: 2})
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, metricKeyPrefix+"raise.count"))
	assert.Equal(t, int64(5), sumOf(t, rm, metricKeyPrefix+"handler.count"), "3 вызова в первой рассылке и 2 во второй")
	assert.Equal(t, int64(1), sumOf(t, rm, metricKeyPrefix+"handler.swallowed"))

	m, ok := findMetric(rm, metricKeyPrefix+"handler.duration")
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(5), count)
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	ch, err := NewChannel("counting.traced", WithTracerProvider[CountingValue](tp))
	require.NoError(t, err)
	threeSubscribers(ch)

	_, err = ch.Raise(context.Background(), CountingValue{Value: 100})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 3, "спан рассылки и спаны двух вызванных обработчиков")

	var raise sdktrace.ReadOnlySpan
	var handlers []sdktrace.ReadOnlySpan
	for _, s := range spans {
		switch s.Name() {
		case "counting.traced raise":
			raise = s
		case "counting.traced handle":
			handlers = append(handlers, s)
		}
	}
	require.NotNil(t, raise)
	require.Len(t, handlers, 2)

	assert.Equal(t, trace.SpanKindProducer, raise.SpanKind())
	assert.Equal(t, codes.Error, raise.Status().Code)
	for _, h := range handlers {
		assert.Equal(t, trace.SpanKindConsumer, h.SpanKind())
		assert.Equal(t, raise.SpanContext().SpanID(), h.Parent().SpanID())
	}
	assert.Equal(t, codes.Unset, handlers[0].Status().Code)
	assert.Equal(t, codes.Error, handlers[1].Status().Code)
}

func TestTracingMiddleware_InjectsMetadata(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	ch, err := NewChannel("task.finished.traced", WithTracerProvider[TaskFinished](tp))
	require.NoError(t, err)

	var got map[string]string
	ch.Subscribe(func(_ context.Context, _ any, e TaskFinished) error {
		got = e.Metadata()
		return nil
	})

	_, err = ch.Raise(context.Background(), TaskFinished{ID: "t-1", meta: map[string]string{}})
	require.NoError(t, err)
	assert.Contains(t, got, "traceparent")
}

func TestDispatchMiddleware_Order(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	mw := func(name string) DispatchMiddleware[int] {
		return MiddlewareFunc[int](func(next Dispatcher[int]) Dispatcher[int] {
			return DispatcherFunc[int](func(ctx context.Context, d Delivery[int]) (Result, error) {
				rec.add(name)
				return next.Dispatch(ctx, d)
			})
		})
	}

	ch, err := NewChannel("ordered", WithDispatchMiddleware(mw("mw1"), mw("mw2")))
	require.NoError(t, err)
	ch.Subscribe(record[int](rec, "handler", nil))

	_, err = ch.Raise(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"mw1", "mw2", "handler"}, rec.Calls())
}

func TestWithDispatcher(t *testing.T) {
	t.Parallel()

	var got Delivery[int]
	custom := DispatcherFunc[int](func(_ context.Context, d Delivery[int]) (Result, error) {
		got = d
		return Result{Invoked: len(d.Subscribers)}, nil
	})

	ch, err := NewChannel("custom", WithDispatcher[int](custom), WithDefaultPolicy[int](ContinueOnFailure))
	require.NoError(t, err)
	s := ch.Subscribe(record[int](&recorder{}, "h", nil))

	res, err := ch.Raise(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Invoked)
	assert.Equal(t, "custom", got.Channel)
	assert.Equal(t, 5, got.Payload)
	assert.Equal(t, ContinueOnFailure, got.Policy)
	require.Len(t, got.Subscribers, 1)
	assert.Equal(t, s.ID, got.Subscribers[0].ID)
}

func TestGetPayloadType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CountingValue", getPayloadType(CountingValue{}))
	assert.Equal(t, "CountingValue", getPayloadType(&CountingValue{}))
	assert.Equal(t, "NoPayload", getPayloadType(NoPayload{}))
	assert.Equal(t, "int", getPayloadType(1))
	assert.Equal(t, "nil", getPayloadType(nil))
	assert.Equal(t, "[]string", getPayloadType([]string{}))
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	require.True(t, ok, "метрика %s не найдена", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsMiddleware_SubMillisecondDuration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	ch, err := NewChannel("counting.fast", WithMeterProvider[int](mp))
	require.NoError(t, err)
	ch.Subscribe(func(context.Context, any, int) error {
		time.Sleep(200 * time.Microsecond)
		return nil
	})

	_, err = ch.Raise(context.Background(), 1)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	m, ok := findMetric(rm, metricKeyPrefix+"handler.duration")
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Greater(t, hist.DataPoints[0].Sum, 0.0, "длительность быстрого обработчика не округляется до нуля")
}
