package podds

import (
	"errors"
	"fmt"

	"github.com/richard-senior/podds/internal/logger"
)

var (
	// ErrInvalidResultKind is returned when a match result label is not home_win, away_win or draw
	ErrInvalidResultKind = errors.New("invalid result kind")

	// ErrInvalidOdds is the sentinel matched by every *InvalidOddsError
	ErrInvalidOdds = errors.New("invalid odds")
)

// InvalidOddsError reports decimal odds that cannot be turned into a probability
type InvalidOddsError struct {
	Odds float64
}

func (e *InvalidOddsError) Error() string {
	return fmt.Sprintf("invalid odds %v: decimal odds must be greater than 1.0", e.Odds)
}

func (e *InvalidOddsError) Is(target error) bool {
	return target == ErrInvalidOdds
}

// InsufficientDataWarning describes a fit or train call that had nothing to learn from.
// It is logged rather than returned; the component keeps its previous state.
type InsufficientDataWarning struct {
	Component string
	Reason    string
}

func (w *InsufficientDataWarning) Error() string {
	return fmt.Sprintf("%s: insufficient data: %s", w.Component, w.Reason)
}

func warnInsufficient(component, reason string) {
	logger.Warn((&InsufficientDataWarning{Component: component, Reason: reason}).Error())
}
