//go:build !linux

package vsock

import (
	"fmt"
	"runtime"
)

func checkPlatform() error {
	return fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
}

func mapError(err error) error { return err }
