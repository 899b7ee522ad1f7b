package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"trafficassign/pkg/apperror"
)

// Команды CLI
const (
	cmdRun        = "run"
	cmdRuns       = "runs"
	cmdShow       = "show"
	cmdDelete     = "delete"
	cmdStats      = "stats"
	cmdFlushCache = "flush-cache"
)

// flagKeys сопоставляет флаги с ключами конфигурации
var flagKeys = map[string]string{
	"network":        "input.network_file",
	"demand":         "input.demand_file",
	"centroids":      "input.centroid_file",
	"name":           "input.name",
	"max-iter":       "solver.max_iterations",
	"tol":            "solver.tolerance",
	"workers":        "solver.workers",
	"policy":         "solver.unreachable_policy",
	"max-duration":   "solver.max_duration",
	"parallel-links": "network.allow_parallel_links",
	"formats":        "report.formats",
	"out":            "report.output_dir",
	"log-level":      "log.level",
}

// cliFlags разобранная командная строка
type cliFlags struct {
	fs *flag.FlagSet

	configPath string
	command    string
	runID      uuid.UUID
	tagsRaw    string
	tags       []string
	limit      int
	window     time.Duration

	values map[string]any
}

func newCLI() *cliFlags {
	return newCLIWithOutput(nil)
}

func newCLIWithOutput(out io.Writer) *cliFlags {
	c := &cliFlags{
		fs:     flag.NewFlagSet("assignment-svc", flag.ContinueOnError),
		values: make(map[string]any),
	}
	if out != nil {
		c.fs.SetOutput(out)
	}
	fs := c.fs

	fs.StringVar(&c.configPath, "config", "", "path to config.yaml")
	fs.String("network", "", "TNTP network file")
	fs.String("demand", "", "TNTP trip table")
	fs.String("centroids", "", "zone to centroid mapping (default: identity over demand zones)")
	fs.String("name", "", "run name (default: network file name)")
	fs.Int("max-iter", 0, "maximum MSA iterations (default 1000)")
	fs.Float64("tol", 0, "relative gap tolerance (default 1e-4)")
	fs.Int("workers", 0, "AON workers, 0 = NumCPU")
	fs.String("policy", "", "unreachable OD pairs: fail or skip")
	fs.Duration("max-duration", 0, "wall-clock limit for one solve")
	fs.Bool("parallel-links", false, "allow parallel links between the same nodes")
	fs.String("formats", "", "comma separated report formats: text,csv,json,markdown,excel,pdf")
	fs.String("out", "", "report directory (empty: text report to stdout)")
	fs.String("log-level", "", "debug, info, warn, error")

	fs.StringVar(&c.tagsRaw, "tags", "", "comma separated tags stored with the run")
	fs.IntVar(&c.limit, "limit", 20, "runs: page size")
	fs.DurationVar(&c.window, "window", 0, "stats: only runs newer than this, 0 = all")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: assignment-svc [flags] [run | runs | show <id> | delete <id> | stats | flush-cache]\n\n")
		fs.PrintDefaults()
	}

	return c
}

// parse разбирает аргументы. Флаги идут до команды.
func (c *cliFlags) parse(args []string) error {
	if err := c.fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return apperror.Wrap(err, apperror.CodeInvalidArgument, "invalid flags")
	}

	c.tags = splitList(c.tagsRaw)

	c.fs.Visit(func(f *flag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		value := getter.Get()
		if f.Name == "formats" {
			value = splitList(f.Value.String())
		}
		c.values[key] = value
	})

	rest := c.fs.Args()
	c.command = cmdRun
	if len(rest) > 0 {
		c.command = rest[0]
		rest = rest[1:]
	}

	switch c.command {
	case cmdShow, cmdDelete:
		if len(rest) != 1 {
			return apperror.Newf(apperror.CodeInvalidArgument, "%s requires exactly one run id", c.command)
		}
		id, err := uuid.Parse(rest[0])
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInvalidArgument, "invalid run id").WithDetails("id", rest[0])
		}
		c.runID = id
	case cmdRun, cmdRuns, cmdStats, cmdFlushCache:
		if len(rest) != 0 {
			return apperror.Newf(apperror.CodeInvalidArgument, "%s takes no arguments", c.command)
		}
	default:
		return apperror.Newf(apperror.CodeInvalidArgument, "unknown command %q", c.command)
	}
	return nil
}

// overrides значения явно заданных флагов по ключам конфигурации
func (c *cliFlags) overrides() map[string]any {
	return c.values
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
