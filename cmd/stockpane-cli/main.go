package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockpane/internal/app"
	"stockpane/internal/config"
	"stockpane/internal/dashboard"
	"stockpane/internal/domain"
	"stockpane/internal/store"
	"stockpane/internal/util"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stockpane-cli",
		Short:         "Manage stockpane portfolios from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML config (env STOCKPANE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(mvCmd())
	rootCmd.AddCommand(quotesCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(portfolioCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("STOCKPANE_CONFIG"); v != "" {
		return v
	}
	return "config/stockpane.yaml"
}

// withApp loads the configuration, opens the application and runs fn with
// a context cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, cfg *config.Config, a *app.Application) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}
	logger := util.NewLogger(cfg.Logging.Level, "text", w)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, cfg, a)
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [portfolio]",
		Short: "List portfolios, or the symbols of one portfolio",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, cfg *config.Config, a *app.Application) error {
				if len(args) == 1 {
					p, err := a.Portfolio(args[0])
					if err != nil {
						return err
					}
					for _, s := range p.Store.Symbols() {
						fmt.Println(s)
					}
					return nil
				}
				for _, side := range store.Sides {
					for _, p := range a.Pane(side).Portfolios() {
						fmt.Printf("%-6s %-20s %4d symbols  %s\n", side, p.Name, p.Store.Len(), p.ID)
					}
				}
				return nil
			})
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <portfolio> <symbol>...",
		Short: "Add symbols to a portfolio",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, cfg *config.Config, a *app.Application) error {
				var failed int
				for _, sym := range args[1:] {
					res, err := a.Dispatch(ctx, app.AddSymbol{Portfolio: args[0], Symbol: sym})
					if err != nil {
						fmt.Fprintf(os.Stderr, "%s: %v\n", sym, err)
						failed++
						continue
					}
					fmt.Printf("added %s\n", res.Symbol)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d symbols not added", failed, len(args)-1)
				}
				return nil
			})
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <portfolio> <symbol>...",
		Short: "Remove symbols from a portfolio",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, cfg *config.Config, a *app.Application) error {
				for _, sym := range args[1:] {
					res, err := a.Dispatch(ctx, app.RemoveSymbol{Portfolio: args[0], Symbol: sym})
					if err != nil {
						return err
					}
					fmt.Printf("removed %s\n", res.Symbol)
				}
				return nil
			})
		},
	}
}

func mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to> <symbol>",
		Short: "Move a symbol between portfolios",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, cfg *config.Config, a *app.Application) error {
				res, err := a.Dispatch(ctx, app.MoveSymbol{From: args[0], To: args[1], Symbol: args[2]})
				if err != nil {
					return err
				}
				fmt.Printf("moved %s from %s to %s\n", res.Symbol, args[0], args[1])
				return nil
			})
		},
	}
}

func quotesCmd() *cobra.Command {
	var (
		sortBy string
		asc    bool
		page   int
	)
	cmd := &cobra.Command{
		Use:   "quotes [portfolio]",
		Short: "Refresh and print quotes (all portfolios when none is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := domain.ParseColumn(sortBy)
			if err != nil {
				return err
			}
			dir := domain.Descending
			if asc {
				dir = domain.Ascending
			}
			return withApp(func(ctx context.Context, cfg *config.Config, a *app.Application) error {
				var targets []*app.Portfolio
				if len(args) == 1 {
					p, err := a.Portfolio(args[0])
					if err != nil {
						return err
					}
					targets = []*app.Portfolio{p}
				} else {
					targets = a.Portfolios()
				}
				for _, p := range targets {
					if _, err := a.Dispatch(ctx, app.ChangeSort{Portfolio: p.ID, Column: col, Direction: &dir}); err != nil {
						return err
					}
				}

				var ref string
				if len(args) == 1 {
					ref = targets[0].ID
				}
				res, err := a.Dispatch(ctx, app.Refresh{Portfolio: ref})
				if err != nil {
					return err
				}
				for _, p := range targets {
					printView(os.Stdout, p.Name, res.Views[p.ID], page-1, cfg.Display.PageSize)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&sortBy, "sort", "s", string(domain.ColumnChangePercent), "Sort column: symbol, price, change_percent")
	cmd.Flags().BoolVar(&asc, "asc", false, "Sort ascending")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	return cmd
}

func printView(w io.Writer, name string, v dashboard.View, page, size int) {
	pg := dashboard.Paginate(v.Rows, page, size)
	fmt.Fprintf(w, "== %s (sorted by %s %s, page %d/%d)\n", name, v.Selector.Column, v.Selector.Direction, pg.Number+1, pg.Count)
	fmt.Fprintf(w, "%-10s %12s %10s %10s  %s\n", "SYMBOL", "PRICE", "CHANGE", "CHANGE%", "")
	for _, r := range pg.Rows {
		note := ""
		switch {
		case r.Pending:
			note = "pending"
		case r.Stale:
			note = "stale"
		}
		fmt.Fprintf(w, "%-10s %12s %10s %10s  %-7s %s\n",
			r.Symbol, r.Price, dashboard.FormatChange(r.Change), r.ChangePercent, r.Class, note)
	}
	fmt.Fprintln(w)
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [portfolio]",
		Short: "Refresh and append a Parquet quote snapshot (all portfolios when none is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, cfg *config.Config, a *app.Application) error {
				var ref string
				if len(args) == 1 {
					ref = args[0]
				}
				if _, err := a.Dispatch(ctx, app.Refresh{Portfolio: ref}); err != nil {
					return err
				}
				ps := store.NewParquetStore(cfg.Storage.DataDir)
				now := time.Now()
				for _, p := range a.Portfolios() {
					if ref != "" && p.ID != ref && p.Name != ref {
						continue
					}
					quotes := p.Engine.Quotes()
					syms := p.Store.Symbols()
					out := make([]domain.Quote, 0, len(syms))
					for _, s := range syms {
						if q, ok := quotes[s]; ok {
							out = append(out, q)
						}
					}
					path, err := ps.WriteQuotes(ctx, p.ID, now, out)
					if err != nil {
						return err
					}
					fmt.Printf("%s: %d quotes -> %s\n", p.Name, len(out), path)
				}
				return nil
			})
		},
	}
}

func snapshotCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "snapshot <portfolio>",
		Short: "Print the exported quote snapshots of a portfolio for a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				d, err := time.ParseInLocation("2006-01-02", date, time.Local)
				if err != nil {
					return fmt.Errorf("parsing date: %w", err)
				}
				day = d
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			id := args[0]
			if !strings.HasSuffix(id, app.PortfolioExt) {
				id += app.PortfolioExt
			}
			quotes, err := store.NewParquetStore(cfg.Storage.DataDir).ReadQuotes(cmd.Context(), id, day)
			if err != nil {
				return err
			}
			if len(quotes) == 0 {
				fmt.Printf("no snapshot for %s on %s\n", args[0], day.Format("2006-01-02"))
				return nil
			}
			slices.SortStableFunc(quotes, func(a, b domain.Quote) int { return a.FetchedAt.Compare(b.FetchedAt) })
			for _, q := range quotes {
				fmt.Printf("%s  %-10s %12s %10s\n",
					q.FetchedAt.Format("15:04:05"), q.Symbol,
					dashboard.FormatPrice(q.Price), dashboard.FormatPercent(q.ChangePercent))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day to read (YYYY-MM-DD, default today)")
	return cmd
}

func portfolioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Create or delete portfolios",
	}

	addCmd := &cobra.Command{
		Use:   "add <left|right> <name>",
		Short: "Create a portfolio at the end of a pane",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := store.ParseSide(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, cfg *config.Config, a *app.Application) error {
				res, err := a.Dispatch(ctx, app.AddPortfolio{Side: side, Name: args[1]})
				if err != nil {
					return err
				}
				fmt.Printf("created %s in %s pane\n", res.Portfolio, side)
				return nil
			})
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <portfolio>",
		Short: "Delete a portfolio and its symbol file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, cfg *config.Config, a *app.Application) error {
				res, err := a.Dispatch(ctx, app.DeletePortfolio{Portfolio: args[0]})
				if err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", res.Portfolio)
				return nil
			})
		},
	}

	cmd.AddCommand(addCmd, rmCmd)
	return cmd
}
