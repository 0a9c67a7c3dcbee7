package app

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupportedFile = errors.New("only PDF files are accepted")
	ErrFileTooLarge    = errors.New("file too large")
	ErrExtraction      = errors.New("text extraction failed")
	ErrProvider        = errors.New("model provider error")
	ErrProviderTimeout = errors.New("model provider timed out")
	ErrCanceled        = errors.New("request canceled")
)

// providerError classifies a failed embedding or generation call.
func providerError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrProviderTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
}
