package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/diagnostics"
	"github.com/funvibe/funweave/internal/pipeline"
)

// options are the flags shared by weave and check.
type options struct {
	inputs     []string
	output     string
	configPath string
	verbose    bool
}

func parseOptions(args []string, allowOutput bool) (*options, error) {
	opts := &options{}
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-o", "--output", "-config", "--config":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s needs a value", arg)
			}
			i++
			if arg == "-o" || arg == "--output" {
				if !allowOutput {
					return nil, fmt.Errorf("%s is not accepted here", arg)
				}
				opts.output = args[i]
			} else {
				opts.configPath = args[i]
			}
		case "-v", "--verbose":
			opts.verbose = true
		default:
			if len(arg) > 1 && arg[0] == '-' {
				return nil, fmt.Errorf("unknown flag %s", arg)
			}
			opts.inputs = append(opts.inputs, arg)
		}
	}
	if len(opts.inputs) == 0 {
		return nil, errors.New("no module given")
	}
	if opts.output != "" && len(opts.inputs) > 1 {
		return nil, errors.New("-o can only be used with a single module")
	}
	return opts, nil
}

// loadConfig picks the -config file, else the nearest funweave.yaml above
// the module, else the defaults.
func loadConfig(opts *options, input string) (*config.WeaveConfig, error) {
	path := opts.configPath
	if path == "" {
		found, err := config.FindConfig(filepath.Dir(input))
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

type result struct {
	input  string
	output string
	ctx    *pipeline.PipelineContext
}

// weaveAll weaves every input concurrently. Each module is linked against
// its own core library, so runs share nothing. Diagnostics are printed in
// input order once all runs are done.
func weaveAll(opts *options) ([]*result, bool) {
	results := make([]*result, len(opts.inputs))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, input := range opts.inputs {
		g.Go(func() error {
			results[i] = weaveOne(opts, input)
			return nil
		})
	}
	_ = g.Wait()

	ok := true
	for _, r := range results {
		if r.ctx.Failed() {
			reportErrors(r.input, r.ctx.Errors)
			ok = false
		}
	}
	return results, ok
}

func weaveOne(opts *options, input string) *result {
	r := &result{input: input, output: input}
	if opts.output != "" {
		r.output = opts.output
	}

	cfg, err := loadConfig(opts, input)
	r.ctx = pipeline.NewPipelineContext(input, cfg)
	r.ctx.OutputPath = r.output
	if err != nil {
		r.ctx.Errors = append(r.ctx.Errors, diagnostics.AsDiagnostic(err, diagnostics.ErrW008))
		return r
	}
	if cfg.Verbose {
		r.ctx.Logger = log.New(os.Stderr, filepath.Base(input)+": ", 0)
	}

	r.ctx = pipeline.Default().Run(r.ctx)
	if r.ctx.Failed() || r.ctx.Output == nil {
		return r
	}
	if err := os.WriteFile(r.output, r.ctx.Output, 0644); err != nil {
		r.ctx.Errors = append(r.ctx.Errors, diagnostics.Wrap(diagnostics.ErrW007, r.output, err))
	}
	return r
}

func summary(r *result) string {
	specializations := 0
	if r.ctx.Registry != nil {
		specializations = len(r.ctx.Registry.Entries())
	}
	rewrites := 0
	if r.ctx.Injection != nil {
		rewrites = r.ctx.Injection.Rewrites()
	}
	callSites := 0
	if r.ctx.Typeclasses != nil {
		callSites = r.ctx.Typeclasses.CallSites
	}
	return fmt.Sprintf("%d specializations, %d rewrites, %d call sites, %s",
		specializations, rewrites, callSites, humanize.Bytes(uint64(len(r.ctx.Output))))
}

const (
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

func reportErrors(input string, errs []error) {
	colored := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	prefix := "Weaving failed:"
	if colored {
		prefix = colorRed + prefix + colorReset
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", prefix, input)
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "- %s\n", err)
	}
}
