package event

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Subscription — дескриптор подписки, возвращаемый при присоединении
// обработчика. По нему обработчик отсоединяется.
type Subscription struct {
	// ID — уникальный идентификатор (UUID) конкретной записи списка. Один и тот же
	// обработчик, подписанный дважды, получает два разных ID.
	ID uuid.UUID
	// Name — необязательное имя обработчика для логов, метрик и трасс.
	Name string
}

// Subscriber — запись списка подписчиков: дескриптор и итоговый обработчик
// с уже примененными middleware подписки.
type Subscriber[T any] struct {
	Subscription
	Handler Handler[T]
}

// subscriptionOptions определяет набор параметров для конфигурации конкретной подписки.
// Управляется через функциональные опции типа SubscribeOption.
type subscriptionOptions[T any] struct {
	name         string
	errorHandler ErrorHandler[T]
	middleware   []HandlerMiddleware[T]
}

// SubscribeOption — это функциональная опция для настройки подписки.
type SubscribeOption[T any] func(*subscriptionOptions[T])

// WithName задает имя обработчика. Без него в логах и метриках используется
// имя функции, полученное через рефлексию.
func WithName[T any](name string) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.name = name
	}
}

// WithErrorHandler задает наблюдателя за ошибками данного обработчика.
func WithErrorHandler[T any](handler ErrorHandler[T]) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.errorHandler = handler
	}
}

// WithHandlerMiddleware добавляет локальные middleware, которые применяются только к данной подписке.
// Первый переданный middleware оказывается внешним.
func WithHandlerMiddleware[T any](mw ...HandlerMiddleware[T]) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.middleware = append(o.middleware, mw...)
	}
}

// SubscriberList — упорядоченный список подписчиков одного канала.
// Порядок присоединения сохраняется, дубликаты допускаются.
// Присоединение, отсоединение и снятие снимка потокобезопасны.
type SubscriberList[T any] struct {
	mu      sync.RWMutex
	entries []Subscriber[T]
}

// NewSubscriberList создает пустой список подписчиков.
func NewSubscriberList[T any]() *SubscriberList[T] {
	return &SubscriberList[T]{}
}

// Attach добавляет обработчик в конец списка и возвращает дескриптор подписки.
func (l *SubscriberList[T]) Attach(handler Handler[T], opts ...SubscribeOption[T]) Subscription {
	subOpts := subscriptionOptions[T]{}
	for _, opt := range opts {
		opt(&subOpts)
	}

	name := subOpts.name
	if name == "" {
		name = getHandlerName(handler)
	}

	finalHandler := Handler[T](func(ctx context.Context, sender any, payload T) error {
		return invoke(ctx, handler, sender, payload)
	})
	if subOpts.errorHandler != nil {
		finalHandler = observeErrors(finalHandler, subOpts.errorHandler)
	}
	for i := len(subOpts.middleware) - 1; i >= 0; i-- {
		finalHandler = subOpts.middleware[i](finalHandler)
	}

	sub := Subscriber[T]{
		Subscription: Subscription{ID: uuid.New(), Name: name},
		Handler:      finalHandler,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, sub)

	return sub.Subscription
}

// Detach удаляет запись с указанным дескриптором.
// Возвращает false, если такой записи нет или она уже удалена.
func (l *SubscriberList[T]) Detach(s Subscription) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.ID == s.ID {
			l.entries = slices.Delete(l.entries, i, i+1)
			return true
		}
	}
	return false
}

// Snapshot возвращает независимую копию списка в текущем порядке.
// Последующие Attach и Detach на копию не влияют.
func (l *SubscriberList[T]) Snapshot() []Subscriber[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

// Len возвращает текущее количество подписчиков.
func (l *SubscriberList[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func observeErrors[T any](next Handler[T], observer ErrorHandler[T]) Handler[T] {
	return func(ctx context.Context, sender any, payload T) error {
		err := next(ctx, sender, payload)
		if err != nil {
			observer(err, payload)
		}
		return err
	}
}
