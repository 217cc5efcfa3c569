package launcher

import (
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
)

// fakePlatform records every primitive called on it. Setting one of the
// fail fields makes the matching primitive fail with that error.
type fakePlatform struct {
	files map[string]bool
	// statsLeft, when positive, removes every file after that many Stat calls.
	statsLeft int

	failCreate    error
	failAlloc     error
	failFree      error
	failWrite     error
	failLoad      error
	failWait      error
	failResume    error
	resumeFailsAt int
	failClose     error
	failThreadEnd error
	failElevate   error
	exitCode      uint32

	calls    []string
	targets  []*fakeTarget
	elevated int
	nextPid  uint32
	nextAddr uintptr
}

func newFakePlatform(files ...string) *fakePlatform {
	p := &fakePlatform{
		files:    map[string]bool{},
		exitCode: 0x7ff80000,
		nextPid:  100,
		nextAddr: 0x10000,
	}
	for _, f := range files {
		p.files[f] = true
	}
	return p
}

func (p *fakePlatform) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePlatform) Stat(path string) error {
	p.record("stat %s", path)
	found := p.files[path]
	if p.statsLeft > 0 {
		p.statsLeft--
		if p.statsLeft == 0 {
			p.files = map[string]bool{}
		}
	}
	if !found {
		return syscall.Errno(2)
	}
	return nil
}

func (p *fakePlatform) CreateSuspended(cmdline string, env []string) (Target, error) {
	p.record("create %s", cmdline)
	if p.failCreate != nil {
		return nil, p.failCreate
	}
	p.nextPid++
	p.nextAddr += 0x10000
	t := &fakeTarget{p: p, pid: p.nextPid, addr: p.nextAddr, cmdline: cmdline, env: env, suspended: true}
	p.targets = append(p.targets, t)
	return t, nil
}

func (p *fakePlatform) EnableDebugPrivilege() error {
	p.elevated++
	return p.failElevate
}

func (p *fakePlatform) hasCall(prefix string) bool {
	for _, c := range p.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

type fakeTarget struct {
	p       *fakePlatform
	pid     uint32
	addr    uintptr
	cmdline string
	env     []string

	region    []byte
	allocated bool
	freed     bool
	written   []byte
	suspended bool
	resumes   int
	closed    int
	threads   []*fakeThread
}

func (t *fakeTarget) Pid() uint32 {
	return t.pid
}

func (t *fakeTarget) Alloc(size int) (uintptr, error) {
	t.p.record("alloc %d", size)
	if t.p.failAlloc != nil {
		return 0, t.p.failAlloc
	}
	t.region = make([]byte, size)
	t.allocated = true
	return t.addr, nil
}

func (t *fakeTarget) Free(addr uintptr) error {
	t.p.record("free %#x", addr)
	if t.p.failFree != nil {
		return t.p.failFree
	}
	t.freed = true
	return nil
}

func (t *fakeTarget) Write(addr uintptr, data []byte) error {
	t.p.record("write %#x %d", addr, len(data))
	if t.p.failWrite != nil {
		return t.p.failWrite
	}
	copy(t.region, data)
	t.written = append([]byte(nil), data...)
	return nil
}

func (t *fakeTarget) LoadLibrary(addr uintptr) (RemoteThread, error) {
	t.p.record("load %#x", addr)
	if t.p.failLoad != nil {
		return nil, t.p.failLoad
	}
	th := &fakeThread{t: t}
	t.threads = append(t.threads, th)
	return th, nil
}

func (t *fakeTarget) Resume() error {
	t.p.record("resume")
	t.resumes++
	if t.p.failResume != nil && (t.p.resumeFailsAt == 0 || t.p.resumeFailsAt == t.resumes) {
		return t.p.failResume
	}
	t.suspended = false
	return nil
}

func (t *fakeTarget) Close() error {
	t.p.record("close")
	t.closed++
	return t.p.failClose
}

type fakeThread struct {
	t      *fakeTarget
	waited bool
	closed int
}

func (th *fakeThread) Wait() (uint32, error) {
	th.t.p.record("wait")
	if th.t.p.failWait != nil {
		return 0, th.t.p.failWait
	}
	th.waited = true
	return th.t.p.exitCode, nil
}

func (th *fakeThread) Close() error {
	th.t.p.record("close-thread")
	th.closed++
	return th.t.p.failThreadEnd
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}
