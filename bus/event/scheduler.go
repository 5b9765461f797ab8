package event

import (
	"context"
	"sync"
	"time"
)

// scheduler - это планировщик отложенных вызовов канала. Каждый вызов ждет
// своего таймера в отдельной горутине.
type scheduler struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// newScheduler создает новый планировщик.
func newScheduler() *scheduler {
	return &scheduler{
		stopCh: make(chan struct{}),
	}
}

// schedule планирует вызов fire через delay. После stop возвращает
// завершенный вызов с ErrChannelClosed.
func (s *scheduler) schedule(ctx context.Context, delay time.Duration, fire func(context.Context) (Result, error)) *Deferred {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return completedDeferred(ErrChannelClosed)
	}

	d := newDeferred()
	s.wg.Add(1)
	go s.run(ctx, delay, d, fire)
	return d
}

func (s *scheduler) run(ctx context.Context, delay time.Duration, d *Deferred, fire func(context.Context) (Result, error)) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		if !d.fire() {
			d.finish(Result{}, ErrRaiseStopped)
			return
		}
		d.finish(fire(ctx))
	case <-d.stopCh:
		d.finish(Result{}, ErrRaiseStopped)
	case <-ctx.Done():
		d.cancel()
		d.finish(Result{}, ctx.Err())
	case <-s.stopCh:
		d.cancel()
		d.finish(Result{}, ErrChannelClosed)
	}
}

// stop отменяет ожидающие вызовы и дожидается завершения уже начатых рассылок.
// Ожидание ограничено ctx.
func (s *scheduler) stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stopCh)
	}
	s.mu.Unlock()

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
