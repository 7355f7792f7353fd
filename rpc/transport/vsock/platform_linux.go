//go:build linux

package vsock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

func checkPlatform() error { return nil }

// mapError marks errors caused by a kernel without vsock support
func mapError(err error) error {
	if errors.Is(err, syscall.EAFNOSUPPORT) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return err
}
