package event

import "fmt"

// Policy определяет поведение рассылки при сбое обработчика.
type Policy int

const (
	// PropagateFirstFailure прекращает рассылку на первом сбое и возвращает
	// его вызывающей стороне. Обработчики после упавшего для этого вызова
	// Raise не уведомляются.
	PropagateFirstFailure Policy = iota
	// ContinueOnFailure вызывает каждый обработчик независимо от сбоев
	// остальных. Сбои проглатываются, вызывающая сторона видит только успех.
	ContinueOnFailure
)

// String возвращает имя политики.
func (p Policy) String() string {
	switch p {
	case PropagateFirstFailure:
		return "propagate_first_failure"
	case ContinueOnFailure:
		return "continue_on_failure"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy разбирает имя политики, возвращенное Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "propagate_first_failure":
		return PropagateFirstFailure, nil
	case "continue_on_failure":
		return ContinueOnFailure, nil
	default:
		return 0, fmt.Errorf("неизвестная политика вызова '%s'", s)
	}
}
