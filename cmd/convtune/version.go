package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Print version and device information",
		Flags:  []cli.Flag{jsonFlag()},
		Before: prepare,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			dev := device.Detect()
			if jsonOutput {
				return writeJSON(os.Stdout, struct {
					version.Info
					Device   string   `json:"device"`
					Features []string `json:"features"`
				}{info, dev.Name(), dev.FeatureList()})
			}
			fmt.Printf("version:    %s\n", info.Version)
			if info.Commit != "" {
				dirty := ""
				if info.Dirty {
					dirty = " (modified)"
				}
				fmt.Printf("commit:     %s%s\n", info.Commit, dirty)
			}
			if info.BuildTime != "" {
				fmt.Printf("build time: %s\n", info.BuildTime)
			}
			fmt.Printf("go:         %s %s\n", info.GoVersion, info.Platform)
			fmt.Printf("device:     %s\n", dev.Name())
			if features := dev.FeatureList(); len(features) > 0 {
				fmt.Printf("features:   %s\n", strings.Join(features, " "))
			}
			return nil
		},
	}
}
