package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ashare/backtest"
	"github.com/rustyeddy/ashare/journal"
	"github.com/rustyeddy/ashare/market"
)

func newBacktestCmd(rc *RootConfig) *cobra.Command {
	var (
		startStr    string
		endStr      string
		strats      []string
		universeDir string
		symbols     string
		journalDB   string
		runID       string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay candidate lists through the minute and daily strategies",
		Long: `Run the backtest engine over [--start, --end]. Candidates come from
<universe-dir>/candidate_pool_<YYYYMMDD>.csv or a fixed --symbols list.

Examples:
  ashare backtest --start 2025-01-02 --end 2025-03-31 --universe-dir ./universe
  ashare backtest --start 20250102 --end 20250131 --strategy baseline_daily --symbols 600000,000001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rc.Config
			loc := cfg.Location()
			start, err := market.ParseDate(startStr, loc)
			if err != nil {
				return fmt.Errorf("bad --start: %w", err)
			}
			end, err := market.ParseDate(endStr, loc)
			if err != nil {
				return fmt.Errorf("bad --end: %w", err)
			}
			if end.Before(start) {
				return fmt.Errorf("--start must not be after --end")
			}

			var universe backtest.Universe
			switch {
			case symbols != "":
				var list backtest.StaticUniverse
				for _, s := range strings.Split(symbols, ",") {
					if s = strings.TrimSpace(s); s != "" {
						list = append(list, s)
					}
				}
				universe = list
			case universeDir != "":
				universe = backtest.CandidateDir(universeDir)
			case cfg.Experiment.UniverseDir != "":
				universe = backtest.CandidateDir(cfg.Experiment.UniverseDir)
			default:
				return fmt.Errorf("--universe-dir or --symbols is required")
			}

			var run []backtest.Strategy
			for _, name := range strats {
				s, err := backtest.New(name, cfg.Experiment.Strategies[name])
				if err != nil {
					return err
				}
				run = append(run, s)
			}

			var files []string
			if rc.ConfigPath != "" {
				files = append(files, rc.ConfigPath)
			}
			bcfg := cfg.BacktestConfig(start, end, rc.Log, files...)
			if runID != "" {
				bcfg.RunID = runID
			}

			if journalDB == "" {
				journalDB = cfg.Experiment.JournalDB
			}
			if journalDB != "" {
				j, err := journal.OpenFillDB(journalDB)
				if err != nil {
					return err
				}
				defer j.Close()
				bcfg.Journal = j
			}

			bars, err := rc.dataProvider()
			if err != nil {
				return err
			}

			report, err := backtest.NewEngine(bars, universe, bcfg).Run(cmd.Context(), run...)
			if report != nil {
				out := cmd.OutOrStdout()
				for _, r := range report.Results {
					fmt.Fprintf(out,
						"%s: trades=%d win_rate=%.2f net_return=%.4f max_dd=%.4f fees=%.2f status=%s\n",
						r.Strategy, r.NTrades, r.WinRate, r.Metrics.NetReturn, r.MaxDrawdown, r.Metrics.FeesPaid, r.Status,
					)
				}
				if report.Dir != "" {
					fmt.Fprintf(out, "results: %s\n", report.Dir)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "First day YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&endStr, "end", "", "Last day YYYY-MM-DD (required)")
	cmd.Flags().StringSliceVar(&strats, "strategy", backtest.Names(), "Strategies to run")
	cmd.Flags().StringVar(&universeDir, "universe-dir", "", "Directory of candidate_pool_<YYYYMMDD>.csv files")
	cmd.Flags().StringVar(&symbols, "symbols", "", "Comma separated fixed candidate list")
	cmd.Flags().StringVar(&journalDB, "journal", "", "SQLite fill journal")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id, overrides experiment.run_id")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}
