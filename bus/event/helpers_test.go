package event

import (
	"context"
	"sync"
	"time"
)

// --- Тестовые нагрузки ---

type CountingValue struct {
	ID    string
	Value int
}

type TaskFinished struct {
	ID   string
	meta map[string]string
}

func (e TaskFinished) Metadata() map[string]string {
	return e.meta
}

// recorder записывает порядок вызова обработчиков.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// record возвращает обработчик, который записывает свое имя и возвращает err.
func record[T any](r *recorder, name string, err error) Handler[T] {
	return func(ctx context.Context, sender any, payload T) error {
		r.add(name)
		return err
	}
}

// sleeping возвращает обработчик, который записывает начало и конец своей работы.
func sleeping[T any](r *recorder, name string, d time.Duration) Handler[T] {
	return func(ctx context.Context, sender any, payload T) error {
		r.add(name + ":start")
		time.Sleep(d)
		r.add(name + ":end")
		return nil
	}
}

func subscribers[T any](handlers ...Handler[T]) []Subscriber[T] {
	list := NewSubscriberList[T]()
	for _, h := range handlers {
		list.Attach(h)
	}
	return list.Snapshot()
}
