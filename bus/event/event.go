// Package event реализует последовательный асинхронный мультикаст событий:
// набор независимых обработчиков подписывается на именованный канал и
// вызывается строго в порядке подписки, причем каждый следующий обработчик
// запускается только после полного завершения предыдущего. Политика вызова
// определяет, прерывает ли ошибка обработчика оставшиеся уведомления или
// изолируется внутри него.
package event

import "context"

// Handler — это функция-обработчик события. Она получает контекст (сигнал
// отмены, общий для всех обработчиков одной рассылки), отправителя события и
// полезную нагрузку. Возвращенная ошибка трактуется как сбой обработчика.
type Handler[T any] func(ctx context.Context, sender any, payload T) error

// HandlerMiddleware — это функция-декоратор для Handler.
// Она принимает следующий обработчик в цепочке и возвращает новый обработчик.
type HandlerMiddleware[T any] func(next Handler[T]) Handler[T]

// ErrorHandler — это функция-наблюдатель для ошибок конкретного обработчика.
// Вызывается при любой политике, в том числе когда ошибка проглатывается.
type ErrorHandler[T any] func(err error, payload T)

// NoPayload — полезная нагрузка для каналов без параметров
// (например, «длительная задача завершена»).
type NoPayload struct{}
