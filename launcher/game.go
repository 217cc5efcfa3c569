package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// CommandLineSize is the capacity of the target's command line, terminator
// included.
const CommandLineSize = 1024

// DefaultOptions are passed to the game when none are given.
var DefaultOptions = []string{"-nointro", "-64bit"}

// Game is one of the supported game variants.
type Game struct {
	Name    string
	SteamID string
	// Exe and Library are relative to the game and mod directories.
	Exe     string
	Library string
}

var (
	ETS2 = Game{
		Name:    "Euro Truck Simulator 2",
		SteamID: "227300",
		Exe:     filepath.Join("bin", "win_x64", "eurotrucks2.exe"),
		Library: "core_ets2mp.dll",
	}
	ATS = Game{
		Name:    "American Truck Simulator",
		SteamID: "270880",
		Exe:     filepath.Join("bin", "win_x64", "amtrucks.exe"),
		Library: "core_atsmp.dll",
	}
)

// Games is the lookup order of ResolveGame.
var Games = []Game{ETS2, ATS}

// Installation is a game found on disk together with the library to
// inject into it.
type Installation struct {
	Game        Game
	ExePath     string
	LibraryPath string
}

// ResolveGame finds which supported game lives in gameDir. Both directories
// are made absolute so the library checked on disk is the one the loader
// opens, whatever the target's working directory is.
func ResolveGame(gameDir, modDir string) (*Installation, error) {
	gameDir, err := filepath.Abs(trimSeparators(gameDir))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	modDir, err = filepath.Abs(trimSeparators(modDir))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, g := range Games {
		exePath := filepath.Join(gameDir, g.Exe)
		if _, err := os.Stat(exePath); err != nil {
			continue
		}
		return &Installation{
			Game:        g,
			ExePath:     exePath,
			LibraryPath: filepath.Join(modDir, g.Library),
		}, nil
	}
	return nil, newError(TargetNotFound, "unable to find ETS2 or ATS in %s", gameDir)
}

// trimSeparators drops one trailing separator. Both '\' and '/' may end a
// windows path.
func trimSeparators(dir string) string {
	if len(dir) > 1 && (strings.HasSuffix(dir, `\`) || strings.HasSuffix(dir, "/")) {
		return dir[:len(dir)-1]
	}
	return dir
}

// CommandLine builds the command line starting inst with options, falling
// back to DefaultOptions when there are none.
func (inst *Installation) CommandLine(options []string) (string, error) {
	exe := inst.ExePath
	if strings.ContainsAny(exe, " \t") {
		exe = `"` + exe + `"`
	}
	if len(options) == 0 {
		return exe + " " + strings.Join(DefaultOptions, " "), nil
	}

	var b strings.Builder
	b.WriteString(exe)
	size := len(exe) + 1
	for _, opt := range options {
		size += 1 + len(opt)
		if size > CommandLineSize {
			return "", newError(OptionsTooLong,
				"game options are too long (%d bytes, limit is %d)", size, CommandLineSize)
		}
		b.WriteByte(' ')
		b.WriteString(opt)
	}
	return b.String(), nil
}

// Env returns base with the Steam app ID variables of inst's game set.
func (inst *Installation) Env(base []string) []string {
	return setEnv(base, map[string]string{
		"SteamGameId": inst.Game.SteamID,
		"SteamAppID":  inst.Game.SteamID,
	})
}

// setEnv replaces or appends vars in env. Names compare case-insensitively,
// as they do on windows.
func setEnv(env []string, vars map[string]string) []string {
	out := make([]string, 0, len(env)+len(vars))
	for _, kv := range env {
		if hasFold(vars, envName(kv)) {
			continue
		}
		out = append(out, kv)
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, fmt.Sprintf("%s=%s", name, vars[name]))
	}
	return out
}

// envName returns the name part of a "key=value" entry. Hidden entries such
// as "=C:=C:\" have names starting with '='.
func envName(kv string) string {
	if kv == "" {
		return ""
	}
	if i := strings.IndexByte(kv[1:], '='); i >= 0 {
		return kv[:i+1]
	}
	return kv
}

func hasFold(vars map[string]string, name string) bool {
	for k := range vars {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
