package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/sparsevit/internal/config"
	"github.com/samcharles93/sparsevit/internal/model"
	"github.com/samcharles93/sparsevit/internal/safetensors"
)

type tensorStats struct {
	Name  string
	DType string
	Shape []int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

func inspectCmd() *cli.Command {
	var (
		path         string
		tensorFilter string
		showStats    bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a weights file: config, tensors and weight statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "weights",
				Aliases:     []string{"w"},
				Usage:       "path to .safetensors file",
				Destination: &path,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only show tensors whose name contains this string",
				Destination: &tensorFilter,
			},
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "compute mean/std/min/max per tensor",
				Value:       true,
				Destination: &showStats,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := safetensors.Open(path)
			if err != nil {
				return err
			}
			w := os.Stdout
			if err := printEmbeddedConfig(w, f); err != nil {
				return err
			}

			var rows []tensorStats
			for _, name := range f.Names() {
				if tensorFilter != "" && !strings.Contains(name, tensorFilter) {
					continue
				}
				info, _ := f.Tensor(name)
				row := tensorStats{Name: name, DType: info.DType, Shape: info.Shape}
				if showStats {
					data, _, err := f.ReadTensorF32(name)
					if err != nil {
						return err
					}
					row.Mean, row.Std, row.Min, row.Max = summarize(data)
				}
				rows = append(rows, row)
			}
			return printTensors(w, rows, showStats)
		},
	}
}

func printEmbeddedConfig(w io.Writer, f *safetensors.File) error {
	raw, ok := f.Metadata[model.MetaConfig]
	if !ok {
		_, err := fmt.Fprintln(w, "config: (none embedded)")
		return err
	}
	var m config.Model
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return fmt.Errorf("decode embedded config: %w", err)
	}
	_, err := fmt.Fprintf(w,
		"config: image=%d channels=%d patch=%d embed=%d heads=%d key_dim=%d global_tokens=%d dilation=%d strided=%v classes=%d\n"+
			"tokens: %d -> %d selected\n\n",
		m.ImageSize, m.Channels, m.PatchSize, m.EmbedDim, m.Heads, m.KeyDim, m.GlobalTokens, m.DilationRate, m.StridedDilation, m.NumClasses,
		m.NumPatches(), min(m.NumPatches(), m.GlobalTokens))
	return err
}

// summarize returns mean, population std, min and max of data.
func summarize(data []float32) (mean, std, lo, hi float64) {
	if len(data) == 0 {
		return 0, 0, 0, 0
	}
	xs := make([]float64, len(data))
	for i, v := range data {
		xs[i] = float64(v)
	}
	mean = stat.Mean(xs, nil)
	std = stat.PopStdDev(xs, nil)
	lo, hi = floats.Min(xs), floats.Max(xs)
	return mean, std, lo, hi
}

func printTensors(w io.Writer, rows []tensorStats, withStats bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if withStats {
		_, _ = fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE\tMEAN\tSTD\tMIN\tMAX")
	} else {
		_, _ = fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE")
	}
	total := 0
	for _, r := range rows {
		n := 1
		for _, d := range r.Shape {
			n *= d
		}
		total += n
		if withStats {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\t%.4g\t%.4g\t%.4g\t%.4g\n", r.Name, r.DType, r.Shape, r.Mean, r.Std, r.Min, r.Max)
		} else {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\n", r.Name, r.DType, r.Shape)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d tensors, %d parameters\n", len(rows), total)
	return err
}
