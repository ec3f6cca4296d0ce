package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUpstreamAuth           = errors.New("upstream auth error")
	ErrUpstreamRequest        = errors.New("upstream request error")
	ErrUpstreamQuery          = errors.New("upstream query error")
	ErrConfiguration          = errors.New("configuration error")
)

func invalidInput(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, message)
}

// storeError maps a data-access failure onto the service taxonomy.
func storeError(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstreamQuery, what, err)
}
