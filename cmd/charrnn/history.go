package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/samcharles93/charrnn/internal/history"
	"github.com/urfave/cli/v3"
)

func historyCmd() *cli.Command {
	var (
		limit  int64
		epochs bool
	)
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded training runs",
		Flags: append(artifactFlags(),
			&cli.Int64Flag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of runs to show",
				Value:       10,
				Destination: &limit,
			},
			&cli.BoolFlag{
				Name:        "epochs",
				Usage:       "also list the loss of every epoch",
				Destination: &epochs,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, configFile)

			store, err := history.Open(ctx, resolvePath(historyDB))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Runs(ctx, int(limit))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			w := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tEPOCHS\tFINAL LOSS\tCORPUS")
			for _, r := range runs {
				eps, err := store.Epochs(ctx, r.ID)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				final := "-"
				if len(eps) > 0 {
					final = fmt.Sprintf("%.4f", eps[len(eps)-1].Loss)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					r.ID[:8], r.StartedAt.Local().Format(time.DateTime), r.Status,
					len(eps), r.Epochs, final, r.Corpus)
				if epochs {
					for _, e := range eps {
						_, _ = fmt.Fprintf(w, "\t  epoch %d\t\t\t%.4f\t%s\n", e.Epoch, e.Loss, e.Duration.Round(time.Millisecond))
					}
				}
			}
			return w.Flush()
		},
	}
}
