package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProviderCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Inspect market data providers",
	}

	var all bool
	health := &cobra.Command{
		Use:   "health",
		Short: "Check that providers answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var rows [][3]string
			if all {
				for _, h := range rc.providerHealth(ctx) {
					rows = append(rows, [3]string{h.Name, status(h.OK), h.Reason})
				}
			} else {
				p, err := rc.dataProvider()
				if err != nil {
					return err
				}
				h := p.Health(ctx)
				rows = append(rows, [3]string{h.Name, status(h.OK), h.Reason})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tSTATUS\tREASON")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r[0], r[1], r[2])
			}
			return w.Flush()
		},
	}
	health.Flags().BoolVar(&all, "all", false, "Check every registered provider")

	cmd.AddCommand(health)
	return cmd
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "down"
}
