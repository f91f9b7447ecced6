package common

import (
	"context"
	"io"

	E "github.com/sagernet/sing-reactor/common/exceptions"
)

func Contains[T comparable](arr []T, target T) bool {
	for i := range arr {
		if target == arr[i] {
			return true
		}
	}
	return false
}

func Done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Close closes every io.Closer among closers and joins their errors.
func Close(closers ...any) error {
	var errors []error
	for _, closer := range closers {
		if c, isCloser := closer.(io.Closer); isCloser && c != nil {
			errors = append(errors, c.Close())
		}
	}
	return E.Errors(errors...)
}
