// Program ime-cursor installs a distinct mouse pointer scheme while the input
// method is composing native text.
package main

import (
	"fmt"
	"os"

	"github.com/thlstsul/ime-cursor/cmd"
)

var (
	version = "devel"
	commit  string
	date    string
)

func main() {
	err := cmd.Execute(os.Args, cmd.BuildArgs{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ime-cursor: %s\n", err.Error())
		os.Exit(1)
	}
}
