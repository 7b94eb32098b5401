package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sparsevit/internal/api"
	"github.com/samcharles93/sparsevit/internal/logger"
)

// defaultMaxBody fits DefaultMaxImages base64 images of a few hundred KiB.
const defaultMaxBody = 16 << 20

func newEcho(server *api.Server, maxBody int64) *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	if maxBody > 0 {
		e.Use(middleware.BodyLimit(maxBody))
	}
	server.Register(e)
	return e
}

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxImages   int64
		maxBody     int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the classification REST API",
		Flags: append(modelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-images",
				Usage:       "maximum images per classify request",
				Value:       api.DefaultMaxImages,
				Destination: &maxImages,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "maximum request body size in bytes",
				Value:       defaultMaxBody,
				Destination: &maxBody,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, appConfig, &addr)
			log := logger.FromContext(ctx)

			m, err := loadModel(ctx)
			if err != nil {
				return err
			}
			server := api.NewServer(m,
				api.WithLabels(appConfig.Labels),
				api.WithMaxImages(int(maxImages)),
				api.WithLogger(log),
			)
			e := newEcho(server, maxBody)
			log.Info("starting server", "address", addr, "params", m.NumParams(), "max_body", maxBody)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
