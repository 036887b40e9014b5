package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	"github.com/vito/arr/pkg/arr"
	"github.com/vito/arr/pkg/ioctx"
)

// Config holds the command-line configuration
type Config struct {
	Debug      bool
	Dump       bool
	ConfigFile string
	Timeout    time.Duration
	NoSpecial  bool
	Files      []string
}

// errReported is returned once an evaluation error has been rendered, so
// that fang only sets the exit status.
var errReported = errors.New("evaluation failed")

func main() {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:   "arr [flags] file...",
		Short: "Adaptive interpreter for an R-like language",
		Long: `arr evaluates programs in the YAML syntax tree format, specializing
each call site to the values it sees while the program runs.`,
		Example: `  # Run a program
  arr program.yaml

  # Run several programs concurrently, each in its own context
  arr a.yaml b.yaml

  # Bound each top-level form and disable specialization
  arr --timeout 5s --no-specialize program.yaml

  # Show the decoded tree and debug logs
  arr -d --dump program.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Files = args
			if !cmd.Flags().Changed("timeout") {
				cfg.Timeout = -1
			}
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	rootCmd.Flags().BoolVar(&cfg.Dump, "dump", false, "Print the decoded syntax tree before evaluating")
	rootCmd.Flags().StringVarP(&cfg.ConfigFile, "config", "c", "", "Path to arr.toml (searched for from the working directory by default)")
	rootCmd.Flags().DurationVar(&cfg.Timeout, "timeout", 0, "Time limit for each top-level form (0 for none)")
	rootCmd.Flags().BoolVar(&cfg.NoSpecial, "no-specialize", false, "Run every operation through its generic implementation")

	ctx := context.Background()
	ctx = ioctx.StdoutToContext(ctx, os.Stdout)
	ctx = ioctx.StderrToContext(ctx, os.Stderr)
	if err := fang.Execute(ctx, rootCmd,
		fang.WithVersion("v0.1.0"),
		fang.WithCommit("dev"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			if errors.Is(err, errReported) {
				return
			}
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	config, err := loadConfig(cfg)
	if err != nil {
		return err
	}

	programs := make([]*arr.Program, 0, len(cfg.Files))
	for _, file := range cfg.Files {
		prog, err := arr.DecodeFile(file)
		if err != nil {
			return report(ctx, err)
		}
		if cfg.Dump {
			_, _ = pretty.Fprintf(ioctx.StderrFromContext(ctx), "%s:\n%# v\n", file, prog.Forms)
		}
		programs = append(programs, prog)
	}

	if len(programs) == 1 {
		return runProgram(ctx, config, programs[0])
	}
	return runConcurrently(ctx, config, programs)
}

func loadConfig(cfg Config) (arr.Config, error) {
	var config arr.Config
	if cfg.ConfigFile != "" {
		loaded, err := arr.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return arr.Config{}, err
		}
		config = loaded
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return arr.Config{}, err
		}
		path, found, err := arr.FindConfig(cwd)
		if err != nil {
			return arr.Config{}, err
		}
		if path != "" {
			slog.Debug("loaded config", "path", path)
		}
		config = found
	}

	config, err := config.ApplyEnv()
	if err != nil {
		return arr.Config{}, err
	}
	if cfg.Timeout >= 0 {
		config.Timeout = arr.Duration{Duration: cfg.Timeout}
	}
	if cfg.NoSpecial {
		config.Specialize = false
	}
	return config, nil
}

// runProgram evaluates a single program, printing each visible result as
// soon as its form completes.
func runProgram(ctx context.Context, config arr.Config, prog *arr.Program) error {
	c := arr.NewContext(config)
	defer c.Close()

	ctx = arr.WithEvalContext(ctx, arr.NewEvalContext(prog.Filename, prog.Source))
	stdout := ioctx.StdoutFromContext(ctx)
	stderr := ioctx.StderrFromContext(ctx)
	for _, form := range prog.Forms {
		res, err := c.Eval(ctx, form)
		if err != nil {
			reported := report(ctx, err)
			fmt.Fprint(stderr, arr.FormatWarnings(res.Warnings))
			return reported
		}
		if res.Visible {
			fmt.Fprintln(stdout, arr.FormatValue(res.Value))
		}
		fmt.Fprint(stderr, arr.FormatWarnings(res.Warnings))
	}
	return nil
}

// runConcurrently evaluates every program in a context of its own and
// prints the visible results grouped by file. Output written by the
// programs themselves is not grouped.
func runConcurrently(ctx context.Context, config arr.Config, programs []*arr.Program) error {
	results, evalErr := arr.EvalConcurrently(ctx, config, programs)
	stdout := ioctx.StdoutFromContext(ctx)
	stderr := ioctx.StderrFromContext(ctx)
	for i, prog := range programs {
		fmt.Fprintf(stdout, "==> %s <==\n", prog.Filename)
		for _, res := range results[i] {
			if res.Visible {
				fmt.Fprintln(stdout, arr.FormatValue(res.Value))
			}
			fmt.Fprint(stderr, arr.FormatWarnings(res.Warnings))
		}
	}
	if evalErr != nil {
		return report(ctx, evalErr)
	}
	return nil
}

// report renders err to stderr, with source context when it has any.
func report(ctx context.Context, err error) error {
	stderr := ioctx.StderrFromContext(ctx)
	var sourceErr *arr.SourceError
	if errors.As(err, &sourceErr) {
		fmt.Fprint(stderr, sourceErr.FormatWithHighlighting())
	} else {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return errReported
}
