//go:build !windows
// +build !windows

package launcher

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned when starting a target on an OS other than
// windows. Run the launcher through wine or proton instead.
var ErrUnsupported = errors.Errorf("suspended launch is not supported on %s", runtime.GOOS)

type otherPlatform struct{}

// DefaultPlatform returns the platform of the running OS.
func DefaultPlatform() Platform {
	return otherPlatform{}
}

func (otherPlatform) Stat(path string) error {
	_, err := os.Stat(path)
	return err
}

func (otherPlatform) CreateSuspended(cmdline string, env []string) (Target, error) {
	return nil, ErrUnsupported
}

func (otherPlatform) EnableDebugPrivilege() error {
	return nil
}
