package launcher

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Kind classifies a launch failure.
type Kind int

const (
	KindUnknown Kind = iota
	TargetNotFound
	OptionsTooLong
	PathTooLong
	LibraryNotFound
	InvalidArgument
	ProcessCreationFailed
	RemoteAllocationFailed
	RemoteWriteFailed
	RemoteThreadCreationFailed
	RemoteWaitFailed
	ResumeFailed
	TargetOrphaned
	CleanupFailed
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	TargetNotFound:             "target not found",
	OptionsTooLong:             "options too long",
	PathTooLong:                "path too long",
	LibraryNotFound:            "library not found",
	InvalidArgument:            "invalid argument",
	ProcessCreationFailed:      "process creation failed",
	RemoteAllocationFailed:     "remote allocation failed",
	RemoteWriteFailed:          "remote write failed",
	RemoteThreadCreationFailed: "remote thread creation failed",
	RemoteWaitFailed:           "remote wait failed",
	ResumeFailed:               "resume failed",
	TargetOrphaned:             "target orphaned",
	CleanupFailed:              "cleanup failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every step of a launch. Op names the OS primitive
// that failed, Arg the argument it was called with.
type Error struct {
	Kind Kind
	Op   string
	Arg  string
	Err  error

	// Cleanup collects failures that happened while releasing resources
	// after this error. It never replaces the error itself.
	Cleanup *multierror.Error
}

func (e *Error) Error() string {
	var b strings.Builder
	switch {
	case e.Op != "" && e.Err != nil:
		fmt.Fprintf(&b, "%s with argument \"%s\" failed", e.Op, e.Arg)
		if code, ok := errnoOf(e.Err); ok {
			fmt.Fprintf(&b, " with error %d", code)
		}
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	case e.Err != nil:
		fmt.Fprintf(&b, "%s: %s", e.Kind, e.Err.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Cleanup != nil && len(e.Cleanup.Errors) > 0 {
		notes := make([]string, 0, len(e.Cleanup.Errors))
		for _, cerr := range e.Cleanup.Errors {
			notes = append(notes, cerr.Error())
		}
		fmt.Fprintf(&b, " (additionally, during cleanup: %s)", strings.Join(notes, "; "))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) addCleanup(err error) {
	if err == nil {
		return
	}
	e.Cleanup = multierror.Append(e.Cleanup, err)
}

func osError(kind Kind, op, arg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Arg: arg, Err: err}
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the launch error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return KindUnknown
}

// IsOrphaned reports whether a failed launch left its target suspended.
func IsOrphaned(err error) bool {
	var lerr *Error
	if !errors.As(err, &lerr) {
		return false
	}
	if lerr.Kind == TargetOrphaned {
		return true
	}
	if lerr.Cleanup == nil {
		return false
	}
	for _, cerr := range lerr.Cleanup.Errors {
		if KindOf(cerr) == TargetOrphaned {
			return true
		}
	}
	return false
}

// ExitCode maps err to a process exit status: the OS error code when one is
// known and the host can report it intact, 1 otherwise, 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := errnoOf(err); ok && code != 0 && code <= exitStatusMax {
		return int(code)
	}
	return 1
}

// exitStatusMax is the largest exit status the host keeps. POSIX hosts
// truncate statuses to 8 bits.
var exitStatusMax = exitStatusLimit(runtime.GOOS)

func exitStatusLimit(goos string) uint32 {
	if goos == "windows" {
		return math.MaxUint32
	}
	return 255
}

func errnoOf(err error) (uint32, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno), true
	}
	return 0, false
}
