package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
)

// syncCmd runs one market data sync step
type syncCmd struct {
	name     string
	synopsis string
	usage    string
	noun     string
	run      func(ctx context.Context, service *marketdata.Service) (int, error)
}

func newFetchPricesCmd() *syncCmd {
	return &syncCmd{
		name:     "fetch-prices",
		synopsis: "resolve tickers and fetch daily prices for every stock",
		usage:    "degiro-portfolio fetch-prices\n\n  Resolves missing tickers from ISINs, then fetches prices since each stock's first transaction.\n",
		noun:     "price rows",
		run: func(ctx context.Context, service *marketdata.Service) (int, error) {
			if _, err := service.ResolveTickers(ctx); err != nil {
				return 0, err
			}
			return service.SyncAllPrices(ctx)
		},
	}
}

func newFetchIndicesCmd() *syncCmd {
	return &syncCmd{
		name:     "fetch-indices",
		synopsis: "fetch benchmark index history",
		usage:    "degiro-portfolio fetch-indices\n\n  Fetches the benchmark indices used for comparison charts.\n",
		noun:     "index prices",
		run: func(ctx context.Context, service *marketdata.Service) (int, error) {
			return service.SyncIndices(ctx)
		},
	}
}

func newFetchRatesCmd() *syncCmd {
	return &syncCmd{
		name:     "fetch-rates",
		synopsis: "fetch EUR exchange rates for held currencies",
		usage:    "degiro-portfolio fetch-rates\n\n  Fetches daily EUR exchange rates for every currency in the portfolio.\n",
		noun:     "exchange rates",
		run: func(ctx context.Context, service *marketdata.Service) (int, error) {
			return service.SyncRates(ctx)
		},
	}
}

func (c *syncCmd) Name() string           { return c.name }
func (c *syncCmd) Synopsis() string       { return c.synopsis }
func (c *syncCmd) Usage() string          { return c.usage }
func (c *syncCmd) SetFlags(*flag.FlagSet) {}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout*10)
	defer cancel()

	n, err := c.run(ctx, a.container.MarketDataService)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", c.name, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Stored %d %s using %s\n", n, c.noun, a.container.MarketDataService.ProviderName())
	return subcommands.ExitSuccess
}

type updateCmd struct{}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "run every market data step (tickers, prices, indices, rates)" }
func (*updateCmd) Usage() string {
	return `degiro-portfolio update

  Same as the dashboard's update button. A failing step does not stop the others.
`
}
func (*updateCmd) SetFlags(*flag.FlagSet) {}

func (*updateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout*10)
	defer cancel()

	result, err := a.container.MarketDataService.UpdateAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Resolved %d tickers, stored %d prices, %d index prices, %d rates\n",
		result.TickersResolved, result.PricesInserted, result.IndexPrices, result.RatesStored)
	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "Errors:\n  %s\n", strings.Join(result.Errors, "\n  "))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
