package main

import (
	"context"
	"flag"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/autodiff"
	"github.com/born-ml/sparse/backend/cpu"
)

// runOptions holds the resolved settings of one run invocation.
type runOptions struct {
	input       string
	output      string
	safetensors string
	configFile  string
	backend     string
	grad        bool
	memoryLimit uint64 // 0 = unlimited
	verbosity   int
}

// densifier materializes in on one backend and copies the results to host.
type densifier func(in *sparseInput, opts runOptions) (*denseOutput, error)

var klogFlags = flag.NewFlagSet("klog", flag.ContinueOnError)

func init() {
	klog.InitFlags(klogFlags)
}

func runCmd() *cli.Command {
	var opts runOptions
	return &cli.Command{
		Name:  "run",
		Usage: "Densify a COO tensor and print the dense tensor as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "COO JSON document (- for stdin) or .safetensors file",
				Required:    true,
				Destination: &opts.input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write the JSON result here instead of stdout",
				Destination: &opts.output,
			},
			&cli.StringFlag{
				Name:        "safetensors",
				Usage:       "also write the dense tensor (and values gradient) to this .safetensors file",
				Destination: &opts.safetensors,
			},
			&cli.StringFlag{
				Name:        "backend",
				Usage:       "execution backend (cpu, webgpu)",
				Value:       "cpu",
				Destination: &opts.backend,
			},
			&cli.BoolFlag{
				Name:        "grad",
				Usage:       "seed the output gradient with each position's flat index and report the values gradient",
				Destination: &opts.grad,
			},
			&cli.Uint64Flag{
				Name:        "memory-limit",
				Usage:       "cap on live backend bytes (0 = unlimited)",
				Destination: &opts.memoryLimit,
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config.yaml",
				Destination: &opts.configFile,
			},
			&cli.IntFlag{
				Name:        "verbosity",
				Aliases:     []string{"v"},
				Usage:       "klog verbosity level",
				Destination: &opts.verbosity,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			path, required := configPath(), false
			if c.IsSet("config") {
				path, required = opts.configFile, true
			}
			cfg, err := loadConfig(path, required)
			if err != nil {
				return err
			}
			applyConfig(c, cfg, &opts)
			if err := klogFlags.Set("v", strconv.Itoa(opts.verbosity)); err != nil {
				return errors.Wrap(err, "setting verbosity")
			}

			run, err := lookupBackend(opts.backend)
			if err != nil {
				return err
			}
			in, err := readInput(opts.input)
			if err != nil {
				return err
			}
			defer in.Release()
			klog.V(1).Infof("densify: %d entries into %v on %s", in.values.NumElements(), in.shape, opts.backend)

			out, err := run(in, opts)
			if err != nil {
				return err
			}
			defer out.Release()

			if opts.safetensors != "" {
				if err := writeSafeTensors(opts.safetensors, out); err != nil {
					return err
				}
			}
			res, err := newDenseResult(out)
			if err != nil {
				return err
			}
			return writeResult(c.Root().Writer, opts.output, res)
		},
	}
}

func lookupBackend(name string) (densifier, error) {
	switch name {
	case "cpu":
		return densifyCPU, nil
	case "webgpu":
		return densifyWebGPU, nil
	default:
		return nil, errors.Errorf("unknown backend %q (want cpu or webgpu)", name)
	}
}

func writeResult(stdout io.Writer, path string, res *denseResult) error {
	if path == "" {
		return encodeResult(stdout, res)
	}
	//nolint:gosec // G304: output path is chosen by the user
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating output")
	}
	if err := encodeResult(f, res); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// recoverOp turns an operator panic into an error.
func recoverOp(err *error) {
	if r := recover(); r != nil {
		*err = errors.Errorf("%v", r)
	}
}

func densifyCPU(in *sparseInput, opts runOptions) (out *denseOutput, err error) {
	backend := cpu.New(cpu.WithMemoryLimit(opts.memoryLimit))
	defer recoverOp(&err)

	values := autodiff.Constant(in.values)
	if opts.grad {
		values = autodiff.Trace(in.values, backend)
	}
	dense := backend.FromSparse(values, in.coords, in.shape)
	out = &denseOutput{dense: dense.Value()}
	if !opts.grad {
		return out, nil
	}

	grads, err := autodiff.Backward(dense, backend.SeedFlatIndex)
	if err != nil {
		out.Release()
		return nil, err
	}
	defer grads.Release()
	gv, err := grads.Get(in.values.Ghost())
	if err != nil {
		out.Release()
		return nil, err
	}
	// The ledger frees its buffers; keep a reference.
	out.gradValues = gv.Clone()
	klog.V(2).Infof("densify: cpu memory %+v", backend.MemoryStats())
	return out, nil
}
