package event

import "log/slog"

// noopMiddleware представляет собой пустое middleware, которое ничего не делает и просто вызывает следующий диспетчер.
type noopMiddleware[T any] struct{}

// Wrap просто возвращает следующий диспетчер без изменений.
func (m *noopMiddleware[T]) Wrap(next Dispatcher[T]) Dispatcher[T] {
	return next
}

// discardLogger используется для внутренних сообщений канала, если логгер не задан.
var discardLogger = slog.New(slog.DiscardHandler)
