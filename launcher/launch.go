package launcher

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// MaxPath is the longest library path, in UTF-16 code units including the
// terminator, the loader accepts. Same value as windows.MAX_PATH.
const MaxPath = 260

type LaunchParams struct {
	// CommandLine is the full command line of the target: quoted
	// executable path followed by its options. It must not be empty.
	CommandLine string

	// LibraryPath is the absolute path of the library injected into the
	// target before any of its own code runs.
	LibraryPath string

	// Env is the complete environment of the target, in "key=value" form.
	// A nil Env inherits ours.
	Env []string
}

// Platform is the set of OS primitives a launch is built from.
type Platform interface {
	// Stat queries the attributes of path and fails if it is not visible.
	Stat(path string) error
	// CreateSuspended starts cmdline with its primary thread suspended.
	CreateSuspended(cmdline string, env []string) (Target, error)
	// EnableDebugPrivilege enables the debug privilege on our own token.
	EnableDebugPrivilege() error
}

// Target is a process created suspended and owned by a launch.
type Target interface {
	Pid() uint32
	// Alloc reserves a read/write region of size bytes in the target.
	Alloc(size int) (uintptr, error)
	Free(addr uintptr) error
	Write(addr uintptr, data []byte) error
	// LoadLibrary starts a remote thread running the OS loader on the
	// path stored at addr.
	LoadLibrary(addr uintptr) (RemoteThread, error)
	// Resume resumes the primary thread.
	Resume() error
	// Close releases the process and primary thread handles.
	Close() error
}

// RemoteThread is a thread running inside a Target.
type RemoteThread interface {
	// Wait blocks until the thread exits, with no timeout.
	Wait() (exitCode uint32, err error)
	Close() error
}

// State is the progress of a single launch.
type State int

const (
	NotStarted State = iota
	ProcessCreatedSuspended
	RegionAllocated
	PathWritten
	RemoteUnitRunning
	RemoteUnitFinished
	Resumed
	CleanedUp
	Failed
)

var stateNames = [...]string{
	"not-started",
	"process-created-suspended",
	"region-allocated",
	"path-written",
	"remote-unit-running",
	"remote-unit-finished",
	"resumed",
	"cleaned-up",
	"failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Launcher starts targets with a library injected. The zero value is not
// usable; see New.
type Launcher struct {
	Platform Platform
	Log      logrus.FieldLogger
}

func New(platform Platform, log logrus.FieldLogger) *Launcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Launcher{Platform: platform, Log: log}
}

// Launch creates a Launcher on the current OS and runs params with it.
func Launch(params LaunchParams) error {
	return New(DefaultPlatform(), nil).Launch(params)
}

// Launch starts params.CommandLine suspended, loads params.LibraryPath into
// it, then resumes it. On success the target is running with the library
// initialized before its entry point. On failure the target, if it was
// created, has been resumed unless the error reports it as orphaned.
func (l *Launcher) Launch(params LaunchParams) error {
	if strings.TrimSpace(params.CommandLine) == "" {
		return newError(InvalidArgument, "empty command line")
	}
	path, err := encodePath(params.LibraryPath)
	if err != nil {
		return err
	}
	if err := l.Platform.Stat(params.LibraryPath); err != nil {
		return osError(LibraryNotFound, "GetFileAttributes", params.LibraryPath, err)
	}

	s := &session{
		log:     l.Log.WithField("library", params.LibraryPath),
		libPath: params.LibraryPath,
		path:    path,
		stat:    l.Platform.Stat,
	}

	target, err := l.Platform.CreateSuspended(params.CommandLine, params.Env)
	if err != nil {
		s.enter(Failed)
		return osError(ProcessCreationFailed, "CreateProcess", params.CommandLine, err)
	}
	s.target = target
	s.log = s.log.WithField("pid", target.Pid())
	s.enter(ProcessCreatedSuspended)

	if lerr := s.run(); lerr != nil {
		s.enter(Failed)
		s.cleanup(lerr)
		return lerr
	}
	s.cleanup(nil)
	return nil
}

// session holds the resources of one launch. Nothing in it is shared
// between launches.
type session struct {
	log     logrus.FieldLogger
	libPath string
	path    []byte
	stat    func(string) error

	target  Target
	state   State
	resumed bool
	region  uintptr
	thread  RemoteThread
	// regionHeld is set when a region must not be freed because a remote
	// thread may still be using it.
	regionHeld bool
}

func (s *session) enter(state State) {
	s.state = state
	s.log.WithField("state", state).Debug("launch state changed")
}

func (s *session) run() *Error {
	if err := s.injectLibrary(); err != nil {
		return err
	}
	if err := s.target.Resume(); err != nil {
		return osError(ResumeFailed, "ResumeThread", "[]", err)
	}
	s.resumed = true
	s.enter(Resumed)
	return nil
}

// cleanup releases the loader thread, the path region and the target, in
// that order. When primary is non-nil, the target is resumed first if it
// still is suspended, and every failure is recorded on primary as a cleanup
// note.
func (s *session) cleanup(primary *Error) {
	note := func(err error) {
		if err == nil {
			return
		}
		if primary != nil {
			primary.addCleanup(err)
		} else {
			s.log.WithError(err).Warn("cleanup failed")
		}
	}

	if primary != nil && !s.resumed {
		if err := s.target.Resume(); err != nil {
			s.log.WithError(err).Error("target left suspended")
			note(&Error{Kind: TargetOrphaned, Op: "ResumeThread", Arg: "[]", Err: err})
		} else {
			s.resumed = true
		}
	}
	if s.thread != nil {
		if err := s.thread.Close(); err != nil {
			note(osError(CleanupFailed, "CloseHandle", "[]", err))
		}
	}
	if s.region != 0 {
		if s.regionHeld {
			s.log.Warn("leaving path region allocated in target, loader thread state unknown")
		} else if err := s.target.Free(s.region); err != nil {
			note(osError(CleanupFailed, "VirtualFreeEx", "[]", err))
		}
	}
	if err := s.target.Close(); err != nil {
		note(osError(CleanupFailed, "CloseHandle", "[]", err))
	}
	if primary == nil {
		s.enter(CleanedUp)
	}
}
