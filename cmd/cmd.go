// Package cmd implements the ime-cursor command line.
package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

type BuildArgs struct {
	Version string
	Commit  string
	Date    string
}

var (
	// fsys is the file system configuration and cursor files are read from.
	fsys afero.Fs = afero.NewOsFs()

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	currentBuildArgs BuildArgs
)

const DESCRIPTION = `ime-cursor switches the system pointer scheme while the input
method is composing native text, so the current input mode is visible
at the mouse pointer.

Keyboard and focus changes are coalesced: the input method is queried
once the burst of events has settled for the configured delay.`

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:        "ime-cursor",
		HelpName:    "ime-cursor",
		Usage:       "Show the input method mode at the mouse pointer.",
		Version:     bArgs.Version,
		UsageText:   "ime-cursor [command] [arguments...]",
		Description: DESCRIPTION,
		Writer:      stdout,
		ErrWriter:   stderr,
		Commands: []cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "run the cursor monitor until interrupted (default)",
				Action:  run,
				Flags:   runFlags,
			},
			{
				Name:    "check",
				Aliases: []string{"c"},
				Usage:   "validate the configuration and the cursor files",
				Action:  check,
				Flags:   commonFlags,
			},
			{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "print the current input method mode",
				Action:  mode,
				Flags:   commonFlags,
			},
			{
				Name:      "version",
				Aliases:   []string{"v"},
				Usage:     "prints the installed version",
				UsageText: " ",
				Action:    getVersion,
			},
		},
		Action:      run,
		Flags:       runFlags,
		HideVersion: true,
	}
	return app.Run(args)
}

func getVersion(ctx *cli.Context) error {
	fmt.Fprintf(ctx.App.Writer,
		"%s %s (%s_%s)\nBuild: %s=%s\n",
		ctx.App.Name,
		ctx.App.Version,
		runtime.GOOS,
		runtime.GOARCH,
		currentBuildArgs.Date, currentBuildArgs.Commit,
	)
	return nil
}

// newLogger returns a console logger writing to stderr at lvl.
func newLogger(lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().Logger()
}
