package domain

import "fmt"

type Status string

const (
	Pending   Status = "pending"
	Uploading Status = "uploading"
	Completed Status = "completed"
	Error     Status = "error"
)

// Terminal reports whether no further status transition is allowed.
func (s Status) Terminal() bool {
	return s == Completed || s == Error
}

func CanTransition(from, to Status) bool {
	switch from {
	case Pending:
		return to == Uploading || to == Error
	case Uploading:
		return to == Completed || to == Error
	case Completed:
		return false
	case Error:
		return false
	default:
		return false
	}
}

func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
