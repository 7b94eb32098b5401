package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sparsevit/internal/config"
	"github.com/samcharles93/sparsevit/internal/logger"
	"github.com/samcharles93/sparsevit/internal/model"
)

// appConfig is loaded once by setup before any subcommand runs.
var appConfig = config.Config{Model: config.Default()}

// setup loads the config file and installs the logger on the context.
// Flags set on the command line win over file values.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return ctx, err
	}
	appConfig = cfg
	applyLogConfig(cmd, cfg)
	if debug {
		logLevel = "debug"
	}
	log, err := logger.Setup(os.Stderr, logFormat, logLevel)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

func applyLogConfig(c *cli.Command, cfg config.Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig applies config file defaults to the model flags when
// the corresponding flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg config.Config) {
	if cfg.Weights != "" && !c.IsSet("weights") {
		weightsPath = cfg.Weights
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// loadModel opens the weights file, or builds a seeded random model from
// the config when none is given.
func loadModel(ctx context.Context) (*model.Model, error) {
	log := logger.FromContext(ctx)
	if weightsPath != "" {
		m, err := model.Load(weightsPath)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", weightsPath, err)
		}
		log.Debug("loaded weights", "path", weightsPath, "params", m.NumParams())
		return m, nil
	}
	m, err := model.New(appConfig.Model)
	if err != nil {
		return nil, err
	}
	m.Init(seed)
	log.Warn("no weights given, using random initialization", "seed", seed)
	return m, nil
}
