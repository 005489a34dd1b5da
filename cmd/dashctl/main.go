// Command dashctl prints market data from the terminal using the same
// client, pipeline and formatting as the dashboard server.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "market")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

var commands = []subcommands.Command{
	&marketsCmd{},
	&globalCmd{},
	&searchCmd{},
	&trendingCmd{},
	&historyCmd{},
}
