package usecase

import (
	"errors"
	"fmt"
)

// DomainError is a non-retryable failure caused by the input itself.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// TechnicalError wraps a storage or infrastructure failure in a fatal step.
// The consumer retries the whole event when it sees one.
type TechnicalError struct {
	Code string
	Step string
	Err  error
}

func (e *TechnicalError) Error() string {
	return fmt.Sprintf("%s at step %s: %v", e.Code, e.Step, e.Err)
}

func (e *TechnicalError) Unwrap() error {
	return e.Err
}

func IsTechnicalError(err error) bool {
	var te *TechnicalError
	return errors.As(err, &te)
}
