package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
)

type summaryCmd struct {
	all bool
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print holdings with value, cost and gain in EUR" }
func (*summaryCmd) Usage() string {
	return `degiro-portfolio summary [-all]

  Prints one row per open position, largest first, followed by portfolio totals.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.all, "all", false, "Include closed positions.")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	rows, err := a.container.PortfolioService.Performance(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing performance: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := renderSummary(os.Stdout, rows, c.all); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// renderSummary writes the holdings table sorted by EUR value, descending
func renderSummary(w io.Writer, rows []portfolio.StockPerformance, includeClosed bool) error {
	selected := make([]portfolio.StockPerformance, 0, len(rows))
	for _, row := range rows {
		if row.Shares <= 0 && !includeClosed {
			continue
		}
		selected = append(selected, row)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return valueOrZero(selected[i].CurrentValueEUR) > valueOrZero(selected[j].CurrentValueEUR)
	})

	eur := string(domain.BaseCurrency)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTICKER\tSHARES\tPRICE\tVALUE\tVALUE EUR\tCOST EUR\tGAIN EUR\tGAIN %")

	var totalValue, totalCost float64
	for _, row := range selected {
		cur := string(row.Currency)
		price := "-"
		if row.LastPrice != nil {
			price = formatMoney(*row.LastPrice, cur)
		}
		gain, gainPct := "-", "-"
		if row.CurrentValueEUR != nil && row.CostBasisEUR != nil {
			diff := *row.CurrentValueEUR - *row.CostBasisEUR
			gain = formatMoney(diff, eur)
			gainPct = formatPercent(diff, *row.CostBasisEUR)
			totalValue += *row.CurrentValueEUR
			totalCost += *row.CostBasisEUR
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Name,
			orDash(row.Ticker),
			strconv.FormatFloat(row.Shares, 'f', -1, 64),
			price,
			formatMoney(row.CurrentValue, cur),
			formatOptionalMoney(row.CurrentValueEUR, eur),
			formatOptionalMoney(row.CostBasisEUR, eur),
			gain,
			gainPct,
		)
	}

	fmt.Fprintf(tw, "TOTAL\t\t\t\t\t%s\t%s\t%s\t%s\n",
		formatMoney(totalValue, eur),
		formatMoney(totalCost, eur),
		formatMoney(totalValue-totalCost, eur),
		formatPercent(totalValue-totalCost, totalCost),
	)
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	for _, row := range selected {
		if row.Error != "" {
			fmt.Fprintf(w, "warning: %s: %s\n", row.Name, row.Error)
		}
	}
	return nil
}

// formatMoney renders an amount with go-money, falling back to a plain
// "1234.50 XYZ" for codes go-money does not know.
func formatMoney(amount float64, code string) string {
	if money.GetCurrency(code) == nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	return money.NewFromFloat(amount, code).Display()
}

func formatOptionalMoney(amount *float64, code string) string {
	if amount == nil {
		return "-"
	}
	return formatMoney(*amount, code)
}

func formatPercent(gain, cost float64) string {
	if cost <= 0 {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", gain/cost*100)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
