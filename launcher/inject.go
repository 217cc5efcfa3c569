package launcher

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// regionSize holds one MaxPath UTF-16 string.
const regionSize = MaxPath * 2

// encodePath returns path as a NUL-terminated little-endian UTF-16 string,
// the argument LoadLibraryW expects.
func encodePath(path string) ([]byte, error) {
	if path == "" {
		return nil, newError(InvalidArgument, "empty library path")
	}
	if strings.IndexByte(path, 0) >= 0 {
		return nil, newError(InvalidArgument, "library path %q contains a NUL byte", path)
	}
	units := append(utf16.Encode([]rune(path)), 0)
	if len(units) > MaxPath {
		return nil, newError(PathTooLong, "path length (%d) exceeds MAX_PATH (%d)", len(units), MaxPath)
	}
	b := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[i*2:], u)
	}
	return b, nil
}

// injectLibrary makes the suspended target load the library. It returns
// once the loader thread in the target has exited. The region and the
// thread handle stay on the session until cleanup.
func (s *session) injectLibrary() *Error {
	addr, err := s.target.Alloc(regionSize)
	if err != nil {
		return osError(RemoteAllocationFailed, "VirtualAllocEx", "[]", err)
	}
	s.region = addr
	s.log = s.log.WithField("addr", fmt.Sprintf("%#x", addr))
	s.enter(RegionAllocated)

	if len(s.path) > regionSize {
		return newError(PathTooLong, "path length (%d) exceeds MAX_PATH (%d)", len(s.path)/2, MaxPath)
	}
	// the library may have disappeared since the launch started
	if err := s.stat(s.libPath); err != nil {
		return osError(LibraryNotFound, "GetFileAttributes", s.libPath, err)
	}

	if err := s.target.Write(addr, s.path); err != nil {
		return osError(RemoteWriteFailed, "WriteProcessMemory", "[]", err)
	}
	s.enter(PathWritten)

	thread, err := s.target.LoadLibrary(addr)
	if err != nil {
		return osError(RemoteThreadCreationFailed, "CreateRemoteThread", "[]", err)
	}
	s.thread = thread
	s.enter(RemoteUnitRunning)

	code, err := thread.Wait()
	if err != nil {
		s.regionHeld = true
		return osError(RemoteWaitFailed, "WaitForSingleObject", "[]", err)
	}
	s.enter(RemoteUnitFinished)
	if code == 0 {
		s.log.Warn("loader thread returned a null module handle, library may not be loaded")
	}
	return nil
}
