package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Channel — именованный канал события: собственный список подписчиков и точка
// вызова Raise. Канал владеет списком подписчиков на протяжении всей своей жизни.
type Channel[T any] struct {
	name        string
	subscribers *SubscriberList[T]
	dispatcher  Dispatcher[T]
	scheduler   *scheduler
	logger      *slog.Logger
	policy      Policy
	sender      any
}

// NewChannel создает новый канал события с именем name.
func NewChannel[T any](name string, opts ...Option[T]) (*Channel[T], error) {
	if name == "" {
		return nil, fmt.Errorf("имя канала не может быть пустым")
	}

	cfg := &config[T]{}
	for _, opt := range opts {
		opt(cfg)
	}

	base := cfg.dispatcher
	if base == nil {
		base = NewDispatcher[T]()
	}

	// Сначала middleware по умолчанию, затем пользовательские: пользовательские
	// оказываются ближе к обработчикам.
	allMiddlewares := []DispatchMiddleware[T]{
		NewLoggingMiddleware[T](cfg.logger),
		NewMetricsMiddleware[T](cfg.meterProvider),
		NewTracingMiddleware[T](cfg.tracerProvider, cfg.propagator),
	}
	allMiddlewares = append(allMiddlewares, cfg.middlewares...)

	logger := cfg.logger
	if logger == nil {
		logger = discardLogger
	}

	c := &Channel[T]{
		name:        name,
		subscribers: NewSubscriberList[T](),
		dispatcher:  applyMiddlewares(base, allMiddlewares...),
		scheduler:   newScheduler(),
		logger:      logger.With(slog.String("channel", name)),
		policy:      cfg.policy,
		sender:      cfg.sender,
	}
	if c.sender == nil {
		c.sender = c
	}
	return c, nil
}

// Name возвращает имя канала.
func (c *Channel[T]) Name() string {
	return c.name
}

// Subscribe добавляет обработчик в конец списка подписчиков.
func (c *Channel[T]) Subscribe(handler Handler[T], opts ...SubscribeOption[T]) Subscription {
	return c.subscribers.Attach(handler, opts...)
}

// Unsubscribe удаляет подписку. Рассылки, уже снявшие снимок, ее по-прежнему вызовут.
func (c *Channel[T]) Unsubscribe(s Subscription) bool {
	return c.subscribers.Detach(s)
}

// Subscribers возвращает текущее количество подписчиков.
func (c *Channel[T]) Subscribers() int {
	return c.subscribers.Len()
}

// Raise снимает снимок подписчиков и последовательно вызывает их.
//
// При политике PropagateFirstFailure (по умолчанию) сбой обработчика
// возвращается как *HandlerError, и все последующие уведомления этого
// вызова теряются. При ContinueOnFailure ошибка всегда nil.
func (c *Channel[T]) Raise(ctx context.Context, payload T, opts ...RaiseOption) (Result, error) {
	ro := raiseOptions{policy: c.policy, sender: c.sender}
	for _, opt := range opts {
		opt(&ro)
	}

	return c.dispatcher.Dispatch(ctx, Delivery[T]{
		Channel:     c.name,
		Sender:      ro.sender,
		Payload:     payload,
		Policy:      ro.policy,
		Subscribers: c.subscribers.Snapshot(),
	})
}

// RaiseAfter планирует однократный Raise через delay. Снимок подписчиков
// снимается в момент срабатывания таймера. Если ctx завершится или канал
// будет закрыт раньше, рассылка не выполняется.
func (c *Channel[T]) RaiseAfter(ctx context.Context, delay time.Duration, payload T, opts ...RaiseOption) *Deferred {
	return c.scheduler.schedule(ctx, delay, func(ctx context.Context) (Result, error) {
		res, err := c.Raise(ctx, payload, opts...)
		if err != nil {
			c.logger.Error("отложенная рассылка завершилась сбоем", slog.Any("error", err))
		}
		return res, err
	})
}

// Shutdown отменяет ожидающие отложенные вызовы и дожидается завершения уже
// начатых. Синхронный Raise после Shutdown продолжает работать.
func (c *Channel[T]) Shutdown(ctx context.Context) error {
	if err := c.scheduler.stop(ctx); err != nil {
		return fmt.Errorf("не удалось дождаться отложенных рассылок канала '%s': %w", c.name, err)
	}
	return nil
}
