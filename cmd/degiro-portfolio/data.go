package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
)

type importCmd struct {
	showSkipped bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a DEGIRO transactions export (CSV or XLSX)" }
func (*importCmd) Usage() string {
	return `degiro-portfolio import [-skipped] <file>

  Parses a DEGIRO transactions export and stores new transactions.
  Re-importing the same file inserts nothing.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.showSkipped, "skipped", false, "List every skipped row with the reason.")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)

	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", path, err)
		return subcommands.ExitFailure
	}
	defer file.Close()

	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	result, err := a.container.ImportService.Import(ctx, filepath.Base(path), file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Imported %d new transactions from %s (%d rows, %d duplicates, %d stocks, %d skipped)\n",
		result.Inserted, result.Filename, result.Rows, result.Duplicates, result.Stocks, len(result.Skipped))
	if c.showSkipped {
		for _, row := range result.Skipped {
			fmt.Printf("  line %d: %s\n", row.Line, row.Reason)
		}
	}
	return subcommands.ExitSuccess
}

type purgeCmd struct {
	yes bool
}

func (*purgeCmd) Name() string     { return "purge" }
func (*purgeCmd) Synopsis() string { return "delete all imported transactions and market data" }
func (*purgeCmd) Usage() string {
	return `degiro-portfolio purge -yes

  Deletes stocks, transactions, prices and indices. Exchange rates are kept.
`
}

func (c *purgeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm the purge.")
}

func (c *purgeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "Refusing to purge without -yes")
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	result, err := a.container.PortfolioService.Purge(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Purge failed: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Deleted %d stocks, %d transactions, %d stock prices, %d indices, %d index prices\n",
		result.Stocks, result.Transactions, result.StockPrices, result.Indices, result.IndexPrices)
	return subcommands.ExitSuccess
}
