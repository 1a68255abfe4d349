package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrBackend      = errors.New("backend error")
	ErrTranscode    = errors.New("transcode error")
	ErrInvalidInput = errors.New("invalid upload input")
)

// wrapBackend tags err as a backend failure while keeping its chain, so
// callers can still match domain sentinels and typed upload errors.
func wrapBackend(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}

func wrapTranscode(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTranscode, err)
}
