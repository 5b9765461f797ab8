package event

import (
	"context"
	"fmt"
)

// Delivery описывает одну рассылку: снимок подписчиков и все, что передается
// каждому из них.
type Delivery[T any] struct {
	Channel     string
	Sender      any
	Payload     T
	Policy      Policy
	Subscribers []Subscriber[T]
}

// Result — итог рассылки, не являющейся сбоем для вызывающей стороны.
type Result struct {
	// Invoked — количество фактически вызванных обработчиков.
	Invoked int
	// Failures — сбои, проглоченные при ContinueOnFailure. Только для диагностики.
	Failures []*HandlerError
}

// Succeeded сообщает, завершились ли все вызванные обработчики без ошибок.
func (r Result) Succeeded() bool {
	return len(r.Failures) == 0
}

// Dispatcher определяет контракт механизма вызова обработчиков.
// Реализация по умолчанию — последовательная, см. Dispatch.
type Dispatcher[T any] interface {
	Dispatch(ctx context.Context, d Delivery[T]) (Result, error)
}

// DispatcherFunc является адаптером, позволяющим использовать обычные функции как Dispatcher.
type DispatcherFunc[T any] func(ctx context.Context, d Delivery[T]) (Result, error)

// Dispatch реализует интерфейс Dispatcher.
func (f DispatcherFunc[T]) Dispatch(ctx context.Context, d Delivery[T]) (Result, error) {
	return f(ctx, d)
}

// NewDispatcher возвращает последовательный диспетчер.
func NewDispatcher[T any]() Dispatcher[T] {
	return DispatcherFunc[T](Dispatch[T])
}

// Dispatch вызывает обработчики снимка строго по порядку, дожидаясь
// завершения каждого перед запуском следующего.
//
// При PropagateFirstFailure первый сбой возвращается как *HandlerError, и
// оставшиеся обработчики для этой рассылки не вызываются вовсе. При
// ContinueOnFailure вызываются все обработчики, сбои накапливаются в
// Result.Failures, а ошибка всегда nil.
//
// Отмена ctx рассылку не прерывает: контекст лишь передается обработчикам,
// и на отмену реагирует только обработчик, вернувший ошибку.
func Dispatch[T any](ctx context.Context, d Delivery[T]) (Result, error) {
	var res Result
	for i, sub := range d.Subscribers {
		err := invoke(ctx, sub.Handler, d.Sender, d.Payload)
		res.Invoked++
		if err == nil {
			continue
		}

		failure := &HandlerError{
			Channel:      d.Channel,
			Index:        i,
			Subscription: sub.Subscription,
			Err:          err,
		}
		if d.Policy == ContinueOnFailure {
			res.Failures = append(res.Failures, failure)
			continue
		}
		return res, failure
	}

	return res, nil
}

// invoke вызывает обработчик и превращает панику в обычную ошибку.
func invoke[T any](ctx context.Context, h Handler[T], sender any, payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx, sender, payload)
}
