//go:build windows
// +build windows

package launcher

import (
	"syscall"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestEnvBlock(t *testing.T) {
	block, err := envBlock([]string{"SteamGameId=227300", "PATH=C:\\Windows"})
	require.NoError(t, err)

	want := append(utf16.Encode([]rune("SteamGameId=227300")), 0)
	want = append(want, utf16.Encode([]rune("PATH=C:\\Windows"))...)
	want = append(want, 0, 0)
	assert.Equal(t, want, block)
}

func TestEnvBlockEmpty(t *testing.T) {
	block, err := envBlock([]string{})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 0}, block)
}

func TestEnvBlockRejectsNul(t *testing.T) {
	_, err := envBlock([]string{"OK=1", "BAD=a\x00b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NUL")
}

func TestCallError(t *testing.T) {
	assert.Equal(t, windows.ERROR_INVALID_PARAMETER, callError(nil))
	assert.Equal(t, windows.ERROR_INVALID_PARAMETER, callError(syscall.Errno(0)))
	assert.Equal(t, windows.ERROR_ACCESS_DENIED, callError(windows.ERROR_ACCESS_DENIED))
}
