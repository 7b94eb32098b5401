package main

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/sys/cpu"

	"github.com/samcharles93/sparsevit/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information and CPU features",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			fmt.Printf("version:    %s\n", info.Version)
			if info.Commit != "" {
				fmt.Printf("commit:     %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				fmt.Printf("build time: %s\n", info.BuildTime)
			}
			fmt.Printf("go:         %s %s\n", info.GoVersion, info.Platform)
			fmt.Printf("cpus:       %d\n", runtime.NumCPU())
			fmt.Printf("features:   %s\n", strings.Join(cpuFeatures(), " "))
			return nil
		},
	}
}

// cpuFeatures lists the detected SIMD extensions relevant to float32
// kernels, sorted by name.
func cpuFeatures() []string {
	all := map[string]bool{
		"sse4.1":     cpu.X86.HasSSE41,
		"avx":        cpu.X86.HasAVX,
		"avx2":       cpu.X86.HasAVX2,
		"fma":        cpu.X86.HasFMA,
		"avx512f":    cpu.X86.HasAVX512F,
		"avx512vnni": cpu.X86.HasAVX512VNNI,
		"asimd":      cpu.ARM64.HasASIMD,
		"asimddp":    cpu.ARM64.HasASIMDDP,
		"sve":        cpu.ARM64.HasSVE,
	}
	var out []string
	for name, ok := range all {
		if ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	if len(out) == 0 {
		return []string{"none"}
	}
	return out
}
