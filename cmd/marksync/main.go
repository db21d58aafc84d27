// marksync keeps browser bookmarks in sync across machines on the same
// network.
package main

import (
	"os"

	"github.com/marksync/marksync/cmd"
	"github.com/marksync/marksync/node"
)

var (
	version string
	commit  string
	branch  string
)

func main() {
	cmd.Version = version
	cmd.Commit = commit
	cmd.Branch = branch
	if err := node.GetCommand().Execute(); err != nil {
		// Do not print error as cmd.SilenceErrors is false
		// and the error was already printed
		os.Exit(1)
	}
}
