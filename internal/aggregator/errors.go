package aggregator

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is wrapped by InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// ErrInvalidPrice is returned when the evaluation price is not a positive finite number.
var ErrInvalidPrice = errors.New("invalid evaluation price")

// InsufficientDataError reports that a series is too short to evaluate.
type InsufficientDataError struct {
	Symbol string
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("cannot evaluate %s: have %d bars, need at least %d", e.Symbol, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }
