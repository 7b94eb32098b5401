package main

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sparsevit/internal/model"
	"github.com/samcharles93/sparsevit/internal/vision"
)

type classifyResult struct {
	File        string            `json:"file"`
	Predictions []labelPrediction `json:"predictions"`
	Stages      []string          `json:"stages,omitempty"`
}

type labelPrediction struct {
	Label string `json:"label"`
	model.Prediction
}

func classifyCmd() *cli.Command {
	var (
		topK   int64
		asJSON bool
		trace  bool
	)

	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify image files",
		ArgsUsage: "IMAGE [IMAGE...]",
		Flags: append(modelFlags(),
			&cli.Int64Flag{
				Name:        "top-k",
				Aliases:     []string{"k"},
				Usage:       "classes to print per image (0 = all)",
				Value:       5,
				Destination: &topK,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "trace",
				Usage:       "include the shape of every attention stage",
				Destination: &trace,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("classify: at least one image path is required")
			}
			applyModelConfig(cmd, appConfig)
			m, err := loadModel(ctx)
			if err != nil {
				return err
			}
			cfg := m.Config()

			pixels := make([][]float32, len(files))
			for i, path := range files {
				if pixels[i], err = preprocessFile(path, cfg.ImageSize); err != nil {
					return err
				}
			}
			images, err := vision.StackImages(cfg.ImageSize, cfg.ImageSize, cfg.Channels, pixels...)
			if err != nil {
				return err
			}
			probs, tr, err := m.ForwardTrace(ctx, images)
			if err != nil {
				return err
			}

			results := make([]classifyResult, len(files))
			for i, path := range files {
				r := classifyResult{File: path}
				for _, p := range model.TopClasses(probs.Row(i), int(topK)) {
					r.Predictions = append(r.Predictions, labelPrediction{Label: appConfig.Label(p.Class), Prediction: p})
				}
				if trace {
					r.Stages = append(r.Stages, "scores "+tr.Scores.String())
					for s, st := range tr.Stages {
						r.Stages = append(r.Stages, fmt.Sprintf("S%d %s", s, st))
					}
				}
				results[i] = r
			}
			return printResults(os.Stdout, results, asJSON)
		},
	}
}

func preprocessFile(path string, size int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	pixels, err := vision.Preprocess(f, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pixels, nil
}

func printResults(w io.Writer, results []classifyResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		if _, err := fmt.Fprintln(w, r.File); err != nil {
			return err
		}
		for _, p := range r.Predictions {
			if _, err := fmt.Fprintf(w, "  %-20s %3d  %.4f\n", p.Label, p.Class, p.Prob); err != nil {
				return err
			}
		}
		for _, s := range r.Stages {
			if _, err := fmt.Fprintf(w, "  %s\n", s); err != nil {
				return err
			}
		}
	}
	return nil
}
