//go:build windows
// +build windows

package launcher

import (
	"strings"
	"syscall"
	"unicode/utf16"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procVirtualAllocEx     = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = modkernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = modkernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread  = modkernel32.NewProc("GetExitCodeThread")
	procLoadLibraryW       = modkernel32.NewProc("LoadLibraryW")
)

type windowsPlatform struct{}

// DefaultPlatform returns the platform of the running OS.
func DefaultPlatform() Platform {
	return windowsPlatform{}
}

func (windowsPlatform) Stat(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = windows.GetFileAttributes(p)
	return err
}

func (windowsPlatform) CreateSuspended(cmdline string, env []string) (Target, error) {
	// CreateProcessW may modify the command line in place
	cmd, err := windows.UTF16FromString(cmdline)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var envp *uint16
	if env != nil {
		block, err := envBlock(env)
		if err != nil {
			return nil, err
		}
		envp = &block[0]
	}

	si := &windows.StartupInfo{}
	si.Cb = uint32(unsafe.Sizeof(*si))
	pi := &windows.ProcessInformation{}
	flags := uint32(windows.CREATE_SUSPENDED | windows.CREATE_UNICODE_ENVIRONMENT)
	err = windows.CreateProcess(nil, &cmd[0], nil, nil, false, flags, envp, nil, si, pi)
	if err != nil {
		return nil, err
	}
	return &windowsTarget{
		process: pi.Process,
		thread:  pi.Thread,
		pid:     pi.ProcessId,
	}, nil
}

func (windowsPlatform) EnableDebugPrivilege() error {
	var token windows.Token
	err := windows.OpenProcessToken(windows.CurrentProcess(),
		windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token)
	if err != nil {
		return errors.Wrap(err, "OpenProcessToken")
	}
	defer token.Close()

	name, err := windows.UTF16PtrFromString("SeDebugPrivilege")
	if err != nil {
		return errors.WithStack(err)
	}
	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, name, &luid); err != nil {
		return errors.Wrap(err, "LookupPrivilegeValue")
	}

	tp := windows.Tokenprivileges{PrivilegeCount: 1}
	tp.Privileges[0] = windows.LUIDAndAttributes{
		Luid:       luid,
		Attributes: windows.SE_PRIVILEGE_ENABLED,
	}
	if err := windows.AdjustTokenPrivileges(token, false, &tp, 0, nil, nil); err != nil {
		return errors.Wrap(err, "AdjustTokenPrivileges")
	}
	return nil
}

// envBlock encodes env the way CREATE_UNICODE_ENVIRONMENT expects it:
// NUL-terminated entries followed by one more NUL.
func envBlock(env []string) ([]uint16, error) {
	var block []uint16
	for _, kv := range env {
		if strings.IndexByte(kv, 0) >= 0 {
			return nil, errors.Errorf("environment entry %q contains a NUL byte", kv)
		}
		block = append(block, utf16.Encode([]rune(kv))...)
		block = append(block, 0)
	}
	if len(block) == 0 {
		block = append(block, 0)
	}
	return append(block, 0), nil
}

type windowsTarget struct {
	process windows.Handle
	thread  windows.Handle
	pid     uint32
}

func (t *windowsTarget) Pid() uint32 {
	return t.pid
}

func (t *windowsTarget) Alloc(size int) (uintptr, error) {
	addr, _, e1 := procVirtualAllocEx.Call(
		uintptr(t.process),
		0,
		uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE,
		windows.PAGE_READWRITE,
	)
	if addr == 0 {
		return 0, callError(e1)
	}
	return addr, nil
}

func (t *windowsTarget) Free(addr uintptr) error {
	// MEM_RELEASE requires a zero size
	r, _, e1 := procVirtualFreeEx.Call(uintptr(t.process), addr, 0, windows.MEM_RELEASE)
	if r == 0 {
		return callError(e1)
	}
	return nil
}

func (t *windowsTarget) Write(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var written uintptr
	err := windows.WriteProcessMemory(t.process, addr, &data[0], uintptr(len(data)), &written)
	if err != nil {
		return err
	}
	if int(written) != len(data) {
		return errors.Errorf("short write: %d of %d bytes", written, len(data))
	}
	return nil
}

func (t *windowsTarget) LoadLibrary(addr uintptr) (RemoteThread, error) {
	// kernel32 is mapped at the same address in every process of a session
	if err := procLoadLibraryW.Find(); err != nil {
		return nil, errors.WithStack(err)
	}
	h, _, e1 := procCreateRemoteThread.Call(
		uintptr(t.process),
		0,
		0,
		procLoadLibraryW.Addr(),
		addr,
		0,
		0,
	)
	if h == 0 {
		return nil, callError(e1)
	}
	return &windowsThread{handle: windows.Handle(h)}, nil
}

func (t *windowsTarget) Resume() error {
	_, err := windows.ResumeThread(t.thread)
	return err
}

func (t *windowsTarget) Close() error {
	var result *multierror.Error
	if t.thread != 0 {
		if err := windows.CloseHandle(t.thread); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "closing primary thread"))
		}
		t.thread = 0
	}
	if t.process != 0 {
		if err := windows.CloseHandle(t.process); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "closing process"))
		}
		t.process = 0
	}
	return result.ErrorOrNil()
}

type windowsThread struct {
	handle windows.Handle
}

func (th *windowsThread) Wait() (uint32, error) {
	if _, err := windows.WaitForSingleObject(th.handle, windows.INFINITE); err != nil {
		return 0, err
	}
	var code uint32
	r, _, e1 := procGetExitCodeThread.Call(uintptr(th.handle), uintptr(unsafe.Pointer(&code)))
	if r == 0 {
		return 0, callError(e1)
	}
	return code, nil
}

func (th *windowsThread) Close() error {
	if th.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(th.handle)
	th.handle = 0
	return err
}

// callError turns the error of a LazyProc.Call that reported failure into
// one that is never nil.
func callError(err error) error {
	if errno, ok := err.(syscall.Errno); ok && errno == 0 {
		return windows.ERROR_INVALID_PARAMETER
	}
	if err == nil {
		return windows.ERROR_INVALID_PARAMETER
	}
	return err
}
