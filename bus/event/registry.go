package event

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// shutdowner — общий для всех Channel[T] метод, не зависящий от типа нагрузки.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Registry - это потокобезопасный реестр именованных каналов.
// Он гарантирует, что для каждого имени существует только один канал
// определенного типа нагрузки.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]any
}

// NewRegistry создает новый экземпляр реестра каналов.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]any),
	}
}

// Get возвращает строго типизированный канал с указанным именем, создавая его
// при первом обращении. Опции применяются только при создании.
func Get[T any](r *Registry, name string, opts ...Option[T]) (*Channel[T], error) {
	r.mu.RLock()
	ch, exists := r.channels[name]
	r.mu.RUnlock()

	if exists {
		return typed[T](ch, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Повторная проверка на случай, если канал был создан во время ожидания блокировки.
	if ch, exists := r.channels[name]; exists {
		return typed[T](ch, name)
	}

	newChannel, err := NewChannel(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать канал '%s': %w", name, err)
	}

	r.channels[name] = newChannel
	return newChannel, nil
}

func typed[T any](ch any, name string) (*Channel[T], error) {
	if typedChannel, ok := ch.(*Channel[T]); ok {
		return typedChannel, nil
	}
	return nil, fmt.Errorf("канал '%s' уже существует с другим типом нагрузки", name)
}

// Shutdown параллельно завершает работу всех зарегистрированных каналов и
// возвращает первую возникшую ошибку. Каждый канал ожидается в пределах ctx
// независимо от сбоев остальных. Блокировка реестра на время ожидания не
// удерживается, поэтому обработчики отложенных рассылок могут вызывать Get.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	channels := make([]shutdowner, 0, len(r.channels))
	for _, ch := range r.channels {
		if s, ok := ch.(shutdowner); ok {
			channels = append(channels, s)
		}
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, s := range channels {
		g.Go(func() error {
			return s.Shutdown(ctx)
		})
	}
	return g.Wait()
}
