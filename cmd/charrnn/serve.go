package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/samcharles93/charrnn/internal/api"
	"github.com/samcharles93/charrnn/internal/inference"
	"github.com/samcharles93/charrnn/internal/logger"
	"github.com/samcharles93/charrnn/internal/model"
	"github.com/urfave/cli/v3"
)

// newService builds the prediction service for bundle. Sampling flags set on
// the command line override the temperature stored in the bundle.
func newService(bundle model.Bundle, cmd *cli.Command) (*inference.Service, error) {
	g, err := model.NewGRU(bundle.Params)
	if err != nil {
		return nil, err
	}
	temp := bundle.Temperature
	if cmd.IsSet("temperature") {
		temp = float32(temperature)
	}
	return inference.NewService(inference.Options{
		Model:       g,
		Tokenizer:   bundle.Tokenizer,
		Temperature: temp,
		TopK:        int(topK),
		TopP:        float32(topP),
		Seed:        seed,
	})
}

func newEcho(svc *inference.Service, log logger.Logger) *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	api.NewServer(svc, log).Register(e)
	return e
}

func serveHTTP(ctx context.Context, svc *inference.Service, address string, timeout time.Duration) error {
	log := logger.FromContext(ctx)
	e := newEcho(svc, log)
	log.Info("starting server", "address", address)
	sc := echo.StartConfig{
		Address: address,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = timeout
			return nil
		},
	}
	return sc.Start(ctx, e)
}
