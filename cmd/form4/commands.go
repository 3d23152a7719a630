package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/trogers1052/form4-tracker/internal/aggregate"
	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/format"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/service"
)

// filterFlags are shared by company and latest
type filterFlags struct {
	hidePlanned bool
	min         string
	mostActive  bool
	days        int
	refresh     bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.hidePlanned, "hp", false, "hide planned (10b5-1) transactions")
	cmd.Flags().StringVar(&f.min, "min", "", "minimum amount: X net, +X buys, -X sells (accepts K/M/B)")
	cmd.Flags().BoolVarP(&f.mostActive, "most-active", "m", false, "sort by transaction count")
	cmd.Flags().IntVar(&f.days, "days", 0, "only transactions from the last N days")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "ignore the cache and fetch everything again")
}

// thresholds converts -min into aggregate filters
func (f *filterFlags) thresholds() (minAmount, minBuy, minSell *decimal.Decimal, err error) {
	if f.min == "" {
		return nil, nil, nil, nil
	}
	kind, v, err := aggregate.ParseThreshold(f.min)
	if err != nil {
		return nil, nil, nil, err
	}
	switch kind {
	case aggregate.ThresholdBuy:
		return nil, &v, nil, nil
	case aggregate.ThresholdSell:
		return nil, nil, &v, nil
	default:
		return &v, nil, nil, nil
	}
}

func (f *filterFlags) sortBy() aggregate.SortBy {
	if f.mostActive {
		return aggregate.SortByCount
	}
	return aggregate.SortByLatest
}

func newCompanyCmd() *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "company TICKER [count] [date_range]",
		Short: "Show recent insider activity for one company, grouped by insider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, dateRange, err := parsePositional(args[1:], time.Now())
			if err != nil {
				return err
			}
			minAmount, minBuy, minSell, err := flags.thresholds()
			if err != nil {
				return err
			}

			resp, err := current.service.Company(cmd.Context(), service.CompanyQuery{
				Ticker:      args[0],
				Count:       count,
				Days:        flags.days,
				HidePlanned: flags.hidePlanned,
				Range:       dateRange,
				Refresh:     flags.refresh,
			})
			if err != nil {
				return err
			}

			insiders := aggregate.Group(resp.Transactions, aggregate.Options{
				GroupBy:     aggregate.GroupByInsider,
				HidePlanned: flags.hidePlanned,
				MinAmount:   minAmount,
				MinBuy:      minBuy,
				MinSell:     minSell,
				SortBy:      flags.sortBy(),
				Limit:       count,
			})

			out := current.out
			fmt.Fprintf(out, "%s - %s (CIK %s)\n", resp.Ticker, resp.CompanyName, resp.CIK)
			fmt.Fprintf(out, "Buys %s (%d)  Sells %s (%d)  Net %s  %s %s\n\n",
				format.FormatAmount(resp.Summary.TotalBuys), resp.Summary.BuyCount,
				format.FormatAmount(resp.Summary.TotalSells), resp.Summary.SellCount,
				format.FormatSignedAmount(resp.Summary.Net),
				format.TrendArrow(resp.Summary.Trend), resp.Summary.Trend)

			if len(insiders) == 0 {
				fmt.Fprintln(out, "No insider transactions found")
				return nil
			}
			fmt.Fprintln(out, format.Header())
			for _, s := range insiders {
				fmt.Fprintln(out, format.FormatInsiderLine(s))
			}
			fmt.Fprintf(out, "\n%d insiders, %d transactions (%s)\n", len(insiders), len(resp.Transactions), resp.SyncMode)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newLatestCmd() *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "latest [count] [date_range]",
		Short: "Show the latest market-wide insider activity, grouped by company",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, dateRange, err := parsePositional(args, time.Now())
			if err != nil {
				return err
			}
			minAmount, minBuy, minSell, err := flags.thresholds()
			if err != nil {
				return err
			}

			resp, err := current.service.Market(cmd.Context(), service.MarketQuery{
				Count:       count,
				Days:        flags.days,
				HidePlanned: flags.hidePlanned,
				Range:       dateRange,
				MinAmount:   minAmount,
				MinBuy:      minBuy,
				MinSell:     minSell,
				SortBy:      flags.sortBy(),
				Refresh:     flags.refresh,
			})
			if err != nil {
				return err
			}

			out := current.out
			if len(resp.Companies) == 0 {
				fmt.Fprintln(out, "No insider transactions found")
				return nil
			}
			fmt.Fprintln(out, format.Header())
			for _, s := range resp.Companies {
				fmt.Fprintln(out, format.FormatSummary(s))
			}
			fmt.Fprintf(out, "\n%d companies: %d buying, %d selling (%s)\n",
				resp.TotalCompanies, resp.BuyingCompanies, resp.SellingCompanies, resp.SyncMode)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup TICKER...",
		Short: "Resolve tickers to SEC CIK numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			missing := 0
			for _, ticker := range args {
				info, err := current.service.Lookup(cmd.Context(), ticker)
				if errors.Is(err, edgar.ErrUnknownTicker) {
					fmt.Fprintf(os.Stderr, "%s: not found\n", strings.ToUpper(ticker))
					missing++
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(current.out, "%-6s CIK %s  %s\n", info.Ticker, info.CIK, info.Title)
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d tickers not found", missing, len(args))
			}
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var market bool
	var days int
	cmd := &cobra.Command{
		Use:   "refresh [TICKER...|--market]",
		Short: "Drop cached filings and sync again from EDGAR",
		RunE: func(cmd *cobra.Command, args []string) error {
			subjects := args
			if market {
				subjects = append([]string{models.MarketSubject}, subjects...)
			}
			if len(subjects) == 0 {
				return fmt.Errorf("give at least one ticker or --market")
			}

			for _, subject := range subjects {
				result, err := current.service.Refresh(cmd.Context(), subject, days)
				if err != nil {
					return fmt.Errorf("%s: %w", subject, err)
				}
				name := strings.ToUpper(subject)
				if subject == models.MarketSubject {
					name = "market"
				}
				fmt.Fprintf(current.out, "Refreshed %s: %d transactions, %d failed filings (%s)\n",
					name, len(result.Transactions), result.FailedFilings, result.Mode)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&market, "market", false, "refresh the market-wide feed")
	cmd.Flags().IntVar(&days, "days", 0, "window to rebuild, in days")
	return cmd
}
