package main

import (
	"fmt"
	"os"

	"github.com/truckersmp-cli/truckersmp-inject/launcher"
)

func main() {
	must(launcher.Run())
}

func must(err error) {
	if err == nil {
		return
	}
	if launcher.Verbose() {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	if launcher.IsOrphaned(err) {
		fmt.Fprintln(os.Stderr, "the game process could not be resumed and is still suspended, end it from the task manager")
	}
	os.Exit(launcher.ExitCode(err))
}
