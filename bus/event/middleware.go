package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/goccy/go-reflect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/x-research-team/dtx-asyncevent/bus/event"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "messaging."
)

// DispatchMiddleware определяет интерфейс для middleware рассылки.
// Middleware позволяет добавлять сквозную функциональность, такую как логирование, метрики или трассировка,
// вокруг рассылки и вокруг каждого отдельного обработчика.
type DispatchMiddleware[T any] interface {
	// Wrap оборачивает следующий диспетчер в цепочке, добавляя свою логику.
	Wrap(next Dispatcher[T]) Dispatcher[T]
}

// MiddlewareFunc является адаптером, позволяющим использовать обычные функции как middleware.
type MiddlewareFunc[T any] func(next Dispatcher[T]) Dispatcher[T]

// Wrap реализует интерфейс DispatchMiddleware.
func (f MiddlewareFunc[T]) Wrap(next Dispatcher[T]) Dispatcher[T] {
	return f(next)
}

// loggingMiddleware реализует DispatchMiddleware для логирования рассылок.
type loggingMiddleware[T any] struct {
	logger *slog.Logger
}

// NewLoggingMiddleware создает новое middleware для логирования.
// Если логгер не предоставлен (nil), возвращается no-op middleware.
func NewLoggingMiddleware[T any](logger *slog.Logger) DispatchMiddleware[T] {
	if logger == nil {
		return &noopMiddleware[T]{}
	}
	return &loggingMiddleware[T]{
		logger: logger,
	}
}

// Wrap оборачивает диспетчер для добавления логирования.
func (m *loggingMiddleware[T]) Wrap(next Dispatcher[T]) Dispatcher[T] {
	return &loggingDispatcher[T]{
		next:   next,
		logger: m.logger,
	}
}

// loggingDispatcher - это обертка над диспетчером, которая добавляет логирование.
type loggingDispatcher[T any] struct {
	next   Dispatcher[T]
	logger *slog.Logger
}

// Dispatch логирует рассылку и исход каждого обработчика.
func (p *loggingDispatcher[T]) Dispatch(ctx context.Context, d Delivery[T]) (res Result, err error) {
	payloadType := getPayloadType(d.Payload)
	p.logger.Info("рассылка события",
		slog.String("channel", d.Channel),
		slog.String("payload_type", payloadType),
		slog.String("policy", d.Policy.String()),
		slog.Int("subscribers", len(d.Subscribers)),
	)

	startTime := time.Now()
	defer func() {
		duration := time.Since(startTime)
		if err != nil {
			p.logger.Error("рассылка прервана сбоем обработчика",
				slog.String("channel", d.Channel),
				slog.Int("invoked", res.Invoked),
				slog.Any("error", err),
				slog.Duration("duration", duration),
			)
			return
		}
		p.logger.Info("рассылка завершена",
			slog.String("channel", d.Channel),
			slog.Int("invoked", res.Invoked),
			slog.Int("swallowed", len(res.Failures)),
			slog.Duration("duration", duration),
		)
	}()

	d = wrapHandlers(d, func(i int, sub Subscriber[T]) Handler[T] {
		return func(ctx context.Context, sender any, payload T) (err error) {
			attrs := []any{
				slog.String("channel", d.Channel),
				slog.String("handler_name", sub.Name),
				slog.Int("index", i),
			}
			p.logger.Debug("начало обработки события", attrs...)

			startTime := time.Now()
			defer func() {
				attrs = append(attrs, slog.Duration("duration", time.Since(startTime)))
				switch {
				case err == nil:
					p.logger.Info("событие успешно обработано", attrs...)
				case d.Policy == ContinueOnFailure:
					p.logger.Warn("ошибка обработчика проглочена", append(attrs, slog.Any("error", err))...)
				default:
					p.logger.Error("ошибка обработки события", append(attrs, slog.Any("error", err))...)
				}
			}()

			return sub.Handler(ctx, sender, payload)
		}
	})

	return p.next.Dispatch(ctx, d)
}

// metricsMiddleware реализует DispatchMiddleware для сбора метрик OpenTelemetry.
type metricsMiddleware[T any] struct {
	raiseCounter       metric.Int64Counter
	handleCounter      metric.Int64Counter
	swallowedCounter   metric.Int64Counter
	handleDurationHist metric.Float64Histogram
}

// NewMetricsMiddleware создает новое middleware для сбора метрик.
func NewMetricsMiddleware[T any](provider metric.MeterProvider) DispatchMiddleware[T] {
	if provider == nil {
		return &noopMiddleware[T]{}
	}

	meter := provider.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	raiseCounter, err := meter.Int64Counter(
		metricKeyPrefix+"raise.count",
		metric.WithDescription("Количество рассылок событий"),
		metric.WithUnit("{raises}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик raise.count: %v", err))
	}

	handleCounter, err := meter.Int64Counter(
		metricKeyPrefix+"handler.count",
		metric.WithDescription("Количество вызовов обработчиков"),
		metric.WithUnit("{calls}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик handler.count: %v", err))
	}

	swallowedCounter, err := meter.Int64Counter(
		metricKeyPrefix+"handler.swallowed",
		metric.WithDescription("Количество проглоченных ошибок обработчиков"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик handler.swallowed: %v", err))
	}

	handleDurationHist, err := meter.Float64Histogram(
		metricKeyPrefix+"handler.duration",
		metric.WithDescription("Длительность работы обработчика"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму handler.duration: %v", err))
	}

	return &metricsMiddleware[T]{
		raiseCounter:       raiseCounter,
		handleCounter:      handleCounter,
		swallowedCounter:   swallowedCounter,
		handleDurationHist: handleDurationHist,
	}
}

// Wrap оборачивает диспетчер для добавления сбора метрик.
func (m *metricsMiddleware[T]) Wrap(next Dispatcher[T]) Dispatcher[T] {
	return &metricsDispatcher[T]{
		next:               next,
		raiseCounter:       m.raiseCounter,
		handleCounter:      m.handleCounter,
		swallowedCounter:   m.swallowedCounter,
		handleDurationHist: m.handleDurationHist,
	}
}

// metricsDispatcher - это обертка над диспетчером, которая собирает метрики.
type metricsDispatcher[T any] struct {
	next               Dispatcher[T]
	raiseCounter       metric.Int64Counter
	handleCounter      metric.Int64Counter
	swallowedCounter   metric.Int64Counter
	handleDurationHist metric.Float64Histogram
}

// Dispatch собирает метрики рассылки и каждого обработчика.
func (p *metricsDispatcher[T]) Dispatch(ctx context.Context, d Delivery[T]) (Result, error) {
	d = wrapHandlers(d, func(_ int, sub Subscriber[T]) Handler[T] {
		return func(ctx context.Context, sender any, payload T) error {
			startTime := time.Now()

			err := sub.Handler(ctx, sender, payload)

			duration := float64(time.Since(startTime).Microseconds()) / 1000
			attrs := metric.WithAttributes(
				attribute.String("channel", d.Channel),
				attribute.String("handler.name", sub.Name),
				attribute.String("status", status(err)),
			)
			p.handleCounter.Add(ctx, 1, attrs)
			p.handleDurationHist.Record(ctx, duration, attrs)

			return err
		}
	})

	res, err := p.next.Dispatch(ctx, d)

	p.raiseCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", d.Channel),
		attribute.String("policy", d.Policy.String()),
		attribute.String("status", status(err)),
	))
	for _, f := range res.Failures {
		p.swallowedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", d.Channel),
			attribute.String("handler.name", f.Subscription.Name),
		))
	}

	return res, err
}

// tracingMiddleware реализует DispatchMiddleware для трассировки OpenTelemetry.
type tracingMiddleware[T any] struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingMiddleware создает новое middleware для трассировки.
func NewTracingMiddleware[T any](tp trace.TracerProvider, p propagation.TextMapPropagator) DispatchMiddleware[T] {
	if tp == nil {
		return &noopMiddleware[T]{}
	}

	if p == nil {
		p = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}

	return &tracingMiddleware[T]{
		tracer: tp.Tracer(
			instrumentationName,
			trace.WithInstrumentationVersion(instrumentationVersion),
		),
		propagator: p,
	}
}

// Wrap оборачивает диспетчер для добавления логики трассировки.
func (m *tracingMiddleware[T]) Wrap(next Dispatcher[T]) Dispatcher[T] {
	return &tracingDispatcher[T]{
		next:       next,
		tracer:     m.tracer,
		propagator: m.propagator,
	}
}

// metadatable - это интерфейс для полезной нагрузки, которая может переносить метаданные.
type metadatable interface {
	Metadata() map[string]string
}

// tracingDispatcher - это обертка над диспетчером, которая управляет спанами трассировки.
type tracingDispatcher[T any] struct {
	next       Dispatcher[T]
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// Dispatch создает спан рассылки и дочерний спан для каждого обработчика.
func (p *tracingDispatcher[T]) Dispatch(ctx context.Context, d Delivery[T]) (res Result, err error) {
	ctx, span := p.tracer.Start(ctx, d.Channel+" raise",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", d.Channel),
			attribute.String("messaging.policy", d.Policy.String()),
			attribute.Int("messaging.subscribers", len(d.Subscribers)),
		),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("messaging.invoked", res.Invoked),
			attribute.Int("messaging.swallowed", len(res.Failures)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if md, ok := any(d.Payload).(metadatable); ok && md.Metadata() != nil {
		p.propagator.Inject(ctx, propagation.MapCarrier(md.Metadata()))
	}

	d = wrapHandlers(d, func(i int, sub Subscriber[T]) Handler[T] {
		return func(ctx context.Context, sender any, payload T) (err error) {
			ctx, span := p.tracer.Start(ctx, d.Channel+" handle",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.destination.name", d.Channel),
					attribute.String("messaging.handler.name", sub.Name),
					attribute.Int("messaging.handler.index", i),
				),
			)
			defer func() {
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				span.End()
			}()

			return sub.Handler(ctx, sender, payload)
		}
	})

	return p.next.Dispatch(ctx, d)
}

// applyMiddlewares применяет цепочку middleware к базовому диспетчеру.
// Middleware применяются в обратном порядке, чтобы обеспечить правильную последовательность вызовов.
func applyMiddlewares[T any](dispatcher Dispatcher[T], middlewares ...DispatchMiddleware[T]) Dispatcher[T] {
	d := dispatcher
	for i := len(middlewares) - 1; i >= 0; i-- {
		d = middlewares[i].Wrap(d)
	}
	return d
}

// wrapHandlers возвращает копию рассылки, в которой обработчик каждого
// подписчика заменен результатом wrap. Исходный снимок не изменяется.
func wrapHandlers[T any](d Delivery[T], wrap func(i int, sub Subscriber[T]) Handler[T]) Delivery[T] {
	subs := make([]Subscriber[T], len(d.Subscribers))
	for i, sub := range d.Subscribers {
		subs[i] = Subscriber[T]{Subscription: sub.Subscription, Handler: wrap(i, sub)}
	}
	d.Subscribers = subs
	return d
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// getPayloadType извлекает имя типа полезной нагрузки с помощью рефлексии.
func getPayloadType(payload any) string {
	if payload == nil {
		return "nil"
	}
	t := reflect.TypeOf(payload)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// getHandlerName извлекает имя обработчика.
func getHandlerName(handler any) string {
	v := reflect.ValueOf(handler)
	if v.Kind() == reflect.Func {
		if pc := v.Pointer(); pc != 0 {
			if f := runtime.FuncForPC(pc); f != nil {
				return f.Name()
			}
		}
	}
	return reflect.TypeOf(handler).String()
}
