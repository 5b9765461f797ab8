package event

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// config содержит неэкспортируемую конфигурацию канала событий.
// Это позволяет добавлять новые опции без изменения публичного API.
type config[T any] struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	middlewares    []DispatchMiddleware[T]
	dispatcher     Dispatcher[T]
	policy         Policy
	sender         any
}

// Option определяет тип для функциональных опций, которые изменяют конфигурацию канала.
type Option[T any] func(*config[T])

// WithLogger возвращает опцию, которая устанавливает логгер для канала событий.
// Логгер используется для записи информации о рассылках и сбоях обработчиков.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *config[T]) {
		c.logger = logger
	}
}

// WithTracerProvider возвращает опцию, которая устанавливает провайдер трассировки.
// Провайдер трассировки используется для создания и управления трассами в контексте OpenTelemetry.
func WithTracerProvider[T any](provider trace.TracerProvider) Option[T] {
	return func(c *config[T]) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider возвращает опцию, которая устанавливает провайдер метрик.
// Провайдер метрик используется для сбора и экспорта метрик производительности.
func WithMeterProvider[T any](provider metric.MeterProvider) Option[T] {
	return func(c *config[T]) {
		c.meterProvider = provider
	}
}

// WithPropagator возвращает опцию, которая устанавливает механизм распространения контекста.
// Пропагатор записывает контекст трассировки в метаданные полезной нагрузки.
func WithPropagator[T any](propagator propagation.TextMapPropagator) Option[T] {
	return func(c *config[T]) {
		c.propagator = propagator
	}
}

// WithDispatchMiddleware возвращает опцию, которая добавляет один или несколько middleware
// в цепочку рассылки. Middleware выполняются в порядке их добавления.
func WithDispatchMiddleware[T any](mw ...DispatchMiddleware[T]) Option[T] {
	return func(c *config[T]) {
		c.middlewares = append(c.middlewares, mw...)
	}
}

// WithDispatcher подменяет базовый последовательный диспетчер.
func WithDispatcher[T any](d Dispatcher[T]) Option[T] {
	return func(c *config[T]) {
		c.dispatcher = d
	}
}

// WithDefaultPolicy задает политику, используемую Raise без WithPolicy.
// По умолчанию PropagateFirstFailure.
func WithDefaultPolicy[T any](p Policy) Option[T] {
	return func(c *config[T]) {
		c.policy = p
	}
}

// WithDefaultSender задает отправителя, передаваемого обработчикам.
func WithDefaultSender[T any](sender any) Option[T] {
	return func(c *config[T]) {
		c.sender = sender
	}
}

// raiseOptions — параметры одного вызова Raise.
type raiseOptions struct {
	policy Policy
	sender any
}

// RaiseOption — это функциональная опция для одного вызова Raise.
type RaiseOption func(*raiseOptions)

// WithPolicy задает политику для данного вызова.
func WithPolicy(p Policy) RaiseOption {
	return func(o *raiseOptions) {
		o.policy = p
	}
}

// WithSender задает отправителя для данного вызова.
func WithSender(sender any) RaiseOption {
	return func(o *raiseOptions) {
		o.sender = sender
	}
}
