// Command ledgerctl values a portfolio offline from a transaction log and a
// price file, using the same ledger as the API.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands(os.Stdout) {
		commander.Register(c, "portfolio")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func commands(out io.Writer) []subcommands.Command {
	return []subcommands.Command{
		&holdingsCmd{out: out},
		&rebalanceCmd{out: out},
		&verifyCmd{out: out},
	}
}
