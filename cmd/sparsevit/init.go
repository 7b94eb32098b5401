package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sparsevit/internal/logger"
	"github.com/samcharles93/sparsevit/internal/model"
)

func initCmd() *cli.Command {
	var (
		outPath string
		force   bool
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Write seeded random weights for the configured model",
		Flags: append(modelFlags(),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .safetensors path",
				Value:       "sparsevit.safetensors",
				Destination: &outPath,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "overwrite an existing file",
				Destination: &force,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, appConfig)
			log := logger.FromContext(ctx)

			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("%s exists (use --force to overwrite)", outPath)
				}
			}
			m, err := model.New(appConfig.Model)
			if err != nil {
				return err
			}
			m.Init(seed)
			if dir := filepath.Dir(outPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := m.Save(outPath); err != nil {
				return err
			}
			log.Info("wrote weights", "path", outPath, "params", m.NumParams(), "seed", seed)
			return nil
		},
	}
}
