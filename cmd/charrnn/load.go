package main

import (
	"context"

	"github.com/samcharles93/charrnn/internal/logger"
	"github.com/samcharles93/charrnn/internal/model"
	"github.com/urfave/cli/v3"
)

func loadCmd() *cli.Command {
	flags := append(artifactFlags(), samplingFlags()...)
	flags = append(flags, serveFlags()...)

	return &cli.Command{
		Name:  "load",
		Usage: "Load the exported model and serve it over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, configFile)
			log := logger.FromContext(ctx)

			dir := resolvePath(bundleDir)
			bundle, err := model.LoadBundle(dir)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Info("model loaded",
				"bundle", dir,
				"vocab_size", bundle.Params.Config.VocabSize,
				"rnn_units", bundle.Params.Config.RNNUnits,
				"epochs", bundle.Epochs,
			)
			svc, err := newService(bundle, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return serveHTTP(ctx, svc, addr, readTimeout)
		},
	}
}
