package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ashare/recommend"
)

func newRecommendCmd(rc *RootConfig) *cobra.Command {
	var (
		req     recommend.Request
		symbols string
		outDir  string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Build the daily recommendation",
		Long: `Run the recommendation pipeline for one trading day and print the
payload. Artifacts are written under --out (recommend/ and pipeline_runs/).

Examples:
  ashare recommend --date 2025-06-30 --topk 3
  ashare recommend --symbols 600000,000001 --risk-profile conservative --format text`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "text" {
				return fmt.Errorf("--format must be json or text (got %q)", format)
			}
			if symbols != "" {
				for _, s := range strings.Split(symbols, ",") {
					if s = strings.TrimSpace(s); s != "" {
						req.Symbols = append(req.Symbols, s)
					}
				}
				if req.Universe == "" {
					req.Universe = recommend.UniverseSymbols
				}
			}

			e, release, err := rc.engine(outDir)
			if err != nil {
				return err
			}
			defer release()

			p, err := e.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "text" {
				txt, err := recommend.Render(p)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, txt)
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(p.View(req.Detail))
		},
	}

	cmd.Flags().StringVar(&req.Date, "date", "", "Trading date YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&req.TopK, "topk", recommend.DefaultTopK, "Number of picks")
	cmd.Flags().StringVar(&symbols, "symbols", "", "Comma separated symbols instead of the dynamic universe")
	cmd.Flags().StringVar(&req.Universe, "universe", "", "Universe: dynamic|symbols|mainline|all")
	cmd.Flags().StringVar(&req.RiskProfile, "risk-profile", "normal", "Risk profile: conservative|normal|aggressive")
	cmd.Flags().StringVar(&req.Detail, "detail", recommend.DetailFull, "Payload detail: compact|full")
	cmd.Flags().StringVar(&outDir, "out", "", "Output root, overrides the config")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json|text")

	return cmd
}
