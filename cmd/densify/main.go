// Package main provides densify, a command that materializes sparse COO
// documents into dense tensors and runs the backward pass through them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "densify",
		Usage: "Materialize sparse COO tensors into dense ones",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			versionCmd(),
		},
	}
}

func main() {
	defer klog.Flush()
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		klog.Flush()
		os.Exit(1)
	}
}
