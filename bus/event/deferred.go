package event

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrRaiseStopped возвращается отложенным вызовом, остановленным через Stop.
var ErrRaiseStopped = errors.New("отложенный вызов остановлен")

const (
	deferredPending int32 = iota
	deferredFired
	deferredStopped
)

// Deferred — отложенный однократный вызов Raise, запланированный RaiseAfter.
// Моделирует уведомления о завершении, например «длительная задача завершена».
type Deferred struct {
	state  atomic.Int32
	stopCh chan struct{}
	done   chan struct{}
	res    Result
	err    error
}

func newDeferred() *Deferred {
	return &Deferred{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// completedDeferred возвращает уже завершенный вызов с ошибкой err.
func completedDeferred(err error) *Deferred {
	d := newDeferred()
	d.state.Store(deferredStopped)
	d.finish(Result{}, err)
	return d
}

// Stop отменяет вызов, если таймер еще не сработал.
// Возвращает false, если рассылка уже началась или вызов уже завершен.
func (d *Deferred) Stop() bool {
	if !d.state.CompareAndSwap(deferredPending, deferredStopped) {
		return false
	}
	close(d.stopCh)
	return true
}

// Done возвращает канал, закрываемый по завершении вызова.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Wait дожидается завершения вызова и возвращает результат рассылки.
// Если ctx завершится раньше, возвращается ошибка контекста, а сам вызов
// продолжает ожидать своего срока.
func (d *Deferred) Wait(ctx context.Context) (Result, error) {
	select {
	case <-d.done:
		return d.res, d.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// fire переводит вызов в состояние «сработал». false означает, что вызов уже остановлен.
func (d *Deferred) fire() bool {
	return d.state.CompareAndSwap(deferredPending, deferredFired)
}

func (d *Deferred) cancel() {
	d.state.CompareAndSwap(deferredPending, deferredStopped)
}

func (d *Deferred) finish(res Result, err error) {
	d.res, d.err = res, err
	close(d.done)
}
