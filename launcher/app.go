package launcher

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app     = kingpin.New("truckersmp-inject", "Starts ETS2 or ATS with the TruckersMP core library injected")
	version = "master"
)

var cli = struct {
	gameDir string
	modDir  string
	options []string
	verbose bool
	dryRun  bool
}{}

func init() {
	app.Version(version)
	app.VersionFlag.Short('V')
	// game options start with '-' and must not be taken for our flags
	app.Interspersed(false)
	app.Arg("gamedir", "Game installation directory").Required().StringVar(&cli.gameDir)
	app.Arg("moddir", "Directory containing the TruckersMP core libraries").Required().StringVar(&cli.modDir)
	app.Arg("options", "Options passed to the game (default: "+fmt.Sprint(DefaultOptions)+")").StringsVar(&cli.options)
	app.Flag("verbose", "Log every launch step").Short('v').Envar("TRUCKERSMP_INJECT_VERBOSE").BoolVar(&cli.verbose)
	app.Flag("dry-run", "Print what would be launched, then exit").Envar("TRUCKERSMP_INJECT_DRY_RUN").BoolVar(&cli.dryRun)
}

// Verbose reports whether --verbose was given.
func Verbose() bool {
	return cli.verbose
}

// parse fills cli from args. Flags are only recognized before GAMEDIR;
// everything after MODDIR goes to the game.
func parse(args []string) error {
	cli.gameDir, cli.modDir, cli.options = "", "", nil
	cli.verbose, cli.dryRun = false, false
	_, err := app.Parse(args)
	return err
}

// Run parses os.Args and performs the launch they describe.
func Run() error {
	err := parse(os.Args[1:])
	if err != nil {
		ctx, _ := app.ParseContext(os.Args[1:])
		if ctx != nil {
			app.FatalUsageContext(ctx, "%s\n", err.Error())
		} else {
			app.FatalUsage("%s\n", err.Error())
		}
	}

	log := logrus.New()
	log.Out = os.Stderr
	if cli.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	return run(DefaultPlatform(), log, os.Stdout, os.Environ())
}

func run(platform Platform, log *logrus.Logger, out io.Writer, environ []string) error {
	inst, err := ResolveGame(cli.gameDir, cli.modDir)
	if err != nil {
		return err
	}
	cmdline, err := inst.CommandLine(cli.options)
	if err != nil {
		return err
	}
	params := LaunchParams{
		CommandLine: cmdline,
		LibraryPath: inst.LibraryPath,
		Env:         inst.Env(environ),
	}
	log.WithFields(logrus.Fields{
		"game":    inst.Game.Name,
		"steamid": inst.Game.SteamID,
	}).Info("starting game")

	if cli.dryRun {
		fmt.Fprintf(out, "command: %s\n", params.CommandLine)
		fmt.Fprintf(out, "library: %s\n", params.LibraryPath)
		fmt.Fprintf(out, "env: SteamGameId=%s SteamAppID=%s\n", inst.Game.SteamID, inst.Game.SteamID)
		return nil
	}

	EnableDebugPrivilege(platform, log)
	err = New(platform, log).Launch(params)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}
