package main

import (
	"context"
	"fmt"

	"github.com/samcharles93/charrnn/internal/logger"
	"github.com/samcharles93/charrnn/internal/model"
	"github.com/urfave/cli/v3"
)

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Print one prediction from the exported model",
		ArgsUsage: "<length>",
		Flags:     append(artifactFlags(), samplingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, configFile)

			length, err := parseCount(cmd.Args().First(), "length")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			bundle, err := model.LoadBundle(resolvePath(bundleDir))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			svc, err := newService(bundle, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			text, stats, err := svc.Generate(ctx, length)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			logger.FromContext(ctx).Debug("generated",
				"chars", stats.CharsGenerated,
				"duration", stats.Duration,
				"chars_per_sec", stats.CPS,
			)
			_, err = fmt.Fprintln(cmd.Root().Writer, text)
			return err
		},
	}
}
