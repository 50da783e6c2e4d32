package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/research-copilot/internal/compare"
	"github.com/tjfontaine/research-copilot/internal/runtime"
	"github.com/tjfontaine/research-copilot/internal/server"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

var errIncomplete = errors.New("run did not complete; resume it once the cause is fixed")

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "process every paper in a folder",
		ArgsUsage: "<papers-folder>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-selector", Usage: "skip the orchestrator model and follow the fixed stage order"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			src := cmd.Args().First()
			if src == "" {
				return fmt.Errorf("papers folder is required")
			}
			e, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := runtime.New(e.options(cmd.Bool("no-selector"))...)
			if err != nil {
				return err
			}
			defer c.Close()

			r, err := c.NewRun(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			res, err := r.Execute(ctx, src)
			if err != nil {
				return err
			}
			printResult(os.Stdout, res)
			if !res.Complete() {
				return errIncomplete
			}
			return nil
		},
	}
}

func resumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "continue an interrupted run from its last completed stage",
		ArgsUsage: "<run-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "papers folder (default: the folder the run started with)"},
			&cli.BoolFlag{Name: "no-selector", Usage: "skip the orchestrator model"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			runID := cmd.Args().First()
			if runID == "" {
				return fmt.Errorf("run id is required")
			}
			e, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := runtime.New(e.options(cmd.Bool("no-selector"))...)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Resume(ctx, filepath.Base(runID), cmd.String("source"))
			if err != nil {
				return err
			}
			printResult(os.Stdout, res)
			if !res.Complete() {
				return errIncomplete
			}
			return nil
		},
	}
}

func traceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "print the events of a run",
		ArgsUsage: "<run-id | run-folder | trace.jsonl>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "only print events of this type"},
			&cli.BoolFlag{Name: "previews", Usage: "include prompt and response previews of model calls"},
			&cli.BoolFlag{Name: "json", Usage: "print raw NDJSON events"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			arg := cmd.Args().First()
			if arg == "" {
				return fmt.Errorf("run id or trace path is required")
			}
			e, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			events, err := trace.ReadEvents(e.tracePath(arg))
			if err != nil {
				return err
			}
			if t := cmd.String("type"); t != "" {
				events = trace.Filter(events, t)
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				for _, ev := range events {
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
				return nil
			}
			printEvents(os.Stdout, events, cmd.Bool("previews"))
			return nil
		},
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "run the pipeline under several temperature/seed settings and recommend one",
		ArgsUsage: "<papers-folder>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "temperatures", Value: "0.3,0.7", Usage: "comma separated temperatures"},
			&cli.StringFlag{Name: "seeds", Value: "42", Usage: "comma separated seeds"},
			&cli.StringFlag{Name: "report", Usage: "write the JSON report to this file"},
			&cli.BoolFlag{Name: "no-selector", Usage: "skip the orchestrator model"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			src := cmd.Args().First()
			if src == "" {
				return fmt.Errorf("papers folder is required")
			}
			temps, err := parseFloats(cmd.String("temperatures"))
			if err != nil {
				return fmt.Errorf("--temperatures: %w", err)
			}
			seeds, err := parseInts(cmd.String("seeds"))
			if err != nil {
				return fmt.Errorf("--seeds: %w", err)
			}
			e, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			noSelector := cmd.Bool("no-selector")
			run := func(ctx context.Context, p compare.Params) (*compare.Outcome, error) {
				cfg := *e.cfg
				cfg.Model.Temperature = p.Temperature
				cfg.Model.Seed = p.Seed
				res, err := runtime.ExecuteOnce(ctx, &cfg, src, e.runOptions(noSelector)...)
				if err != nil {
					return nil, err
				}
				return &compare.Outcome{
					RunID:     res.RunID,
					Complete:  res.Complete(),
					Survey:    res.Survey,
					Summaries: res.Summaries,
				}, nil
			}

			report, err := compare.Compare(ctx, compare.Grid(temps, seeds), e.cfg.Pipeline.SurveyWordLimit, run,
				compare.WithLogger(e.logger))
			if err != nil {
				return err
			}
			printReport(os.Stdout, report)

			if path := cmd.String("report"); path != "" {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}
			if report.Best == nil {
				return fmt.Errorf("no configuration completed")
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the run status API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides server.addr)"},
			&cli.BoolFlag{Name: "no-selector", Usage: "skip the orchestrator model"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := runtime.New(e.options(cmd.Bool("no-selector"))...)
			if err != nil {
				return err
			}
			defer c.Close()

			addr := e.cfg.Server.Addr
			if a := cmd.String("addr"); a != "" {
				addr = a
			}
			return server.New(addr, c, e.logger).Start(ctx)
		},
	}
}

func (e *env) options(noSelector bool) []runtime.Option {
	return append([]runtime.Option{runtime.WithConfig(e.cfg)}, e.runOptions(noSelector)...)
}

// runOptions are the options shared by every Copilot, without the config.
func (e *env) runOptions(noSelector bool) []runtime.Option {
	opts := []runtime.Option{runtime.WithLogger(e.logger)}
	if noSelector {
		opts = append(opts, runtime.WithoutSelector())
	}
	return opts
}

// tracePath accepts a trace file, a run folder or a run id.
func (e *env) tracePath(arg string) string {
	if fi, err := os.Stat(arg); err == nil {
		if fi.IsDir() {
			return filepath.Join(arg, e.cfg.Trace.File)
		}
		return arg
	}
	return filepath.Join(e.cfg.Output.Dir, arg, e.cfg.Trace.File)
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values")
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values")
	}
	return out, nil
}
