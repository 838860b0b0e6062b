// Command degiro-portfolio manages the portfolio database from the shell:
// importing DEGIRO exports, refreshing market data, backups and summaries.
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
	register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// register adds all subcommands to the commander
func register(c *subcommands.Commander) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")

	c.Register(&importCmd{}, "data")
	c.Register(&purgeCmd{}, "data")

	c.Register(newFetchPricesCmd(), "market data")
	c.Register(newFetchIndicesCmd(), "market data")
	c.Register(newFetchRatesCmd(), "market data")
	c.Register(&updateCmd{}, "market data")

	c.Register(&backupCmd{}, "maintenance")

	c.Register(&summaryCmd{}, "reports")
}
