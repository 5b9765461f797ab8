package event

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed возвращается отложенным вызовом, если канал был закрыт
	// до срабатывания таймера.
	ErrChannelClosed = errors.New("канал событий закрыт")
	// ErrHandlerPanic оборачивает панику, перехваченную в обработчике.
	ErrHandlerPanic = errors.New("паника в обработчике события")
)

// HandlerError описывает сбой обработчика с индексом Index в снимке подписчиков.
// Обработчики с меньшим индексом завершились до сбоя.
type HandlerError struct {
	Channel      string
	Index        int
	Subscription Subscription
	Err          error
}

// Error реализует интерфейс error.
func (e *HandlerError) Error() string {
	name := e.Subscription.Name
	if name == "" {
		name = e.Subscription.ID.String()
	}
	return fmt.Sprintf("обработчик #%d (%s) канала '%s' завершился с ошибкой: %v", e.Index, name, e.Channel, e.Err)
}

// Unwrap возвращает исходную ошибку обработчика.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// FailedAt возвращает индекс упавшего обработчика, если err содержит HandlerError.
func FailedAt(err error) (int, bool) {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Index, true
	}
	return 0, false
}
