package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/config"
	"trafficassign/pkg/logger"
	"trafficassign/pkg/metrics"
	"trafficassign/pkg/telemetry"
	"trafficassign/services/assignment-svc/internal/loader"
	"trafficassign/services/assignment-svc/internal/report"
	"trafficassign/services/assignment-svc/internal/repository"
	"trafficassign/services/assignment-svc/internal/service"
)

// =========================================================================
// run
// =========================================================================

func runAssignment(ctx context.Context, cfg *config.Config, svc *service.AssignmentService, tags []string, stdout io.Writer) error {
	in, err := loadInputs(ctx, cfg)
	if err != nil {
		return err
	}
	in.Tags = tags

	out, err := svc.Run(ctx, in)
	if err != nil {
		return err
	}

	res := out.Result
	log := logger.WithRunID(out.RunID.String())
	attrs := []any{
		slog.String("state", res.State.String()),
		slog.Int("iterations", res.Iterations),
		slog.Float64("relative_gap", res.RelativeGap),
		slog.Bool("cache_hit", out.CacheHit),
	}
	if res.Converged() {
		log.Info("assignment finished", attrs...)
	} else {
		log.Warn("assignment stopped before convergence", attrs...)
	}

	data := report.Build(report.Input{
		Name:     in.Name,
		RunID:    out.RunID.String(),
		Network:  in.Network,
		Zones:    in.Zones,
		Demand:   in.Demand,
		Result:   res,
		Solver:   svc.Options(),
		CacheHit: out.CacheHit,
		Options: &report.Options{
			Title:              cfg.Report.Title,
			Author:             cfg.Report.Author,
			MaxTableRows:       cfg.Report.MaxTableRows,
			IncludeTravelTimes: cfg.Report.IncludeTravelTimes,
			RouteCount:         cfg.Report.RouteCount,
		},
	})
	return writeReports(ctx, cfg.Report, data, stdout)
}

// loadInputs читает сеть, матрицу спроса и центроиды
func loadInputs(ctx context.Context, cfg *config.Config) (in service.Inputs, err error) {
	ctx, span := telemetry.StartSpan(ctx, "loader.Load")
	defer func() {
		if err != nil {
			telemetry.SetError(ctx, err)
		}
		span.End()
	}()

	if cfg.Input.NetworkFile == "" || cfg.Input.DemandFile == "" {
		return service.Inputs{}, apperror.New(apperror.CodeInvalidArgument,
			"input.network_file and input.demand_file are required (-network, -demand)")
	}

	nf, err := traced(ctx, "loader.LoadNetwork", cfg.Input.NetworkFile, func() (*loader.NetworkFile, error) {
		return loader.LoadNetworkFile(cfg.Input.NetworkFile, loader.NetworkOptions{
			AllowParallelLinks: cfg.Network.AllowParallelLinks,
		})
	})
	if err != nil {
		return service.Inputs{}, err
	}
	for _, w := range nf.Warnings {
		logger.Log.Warn("network file", "path", cfg.Input.NetworkFile, "warning", w)
	}

	df, err := traced(ctx, "loader.LoadDemand", cfg.Input.DemandFile, func() (*loader.DemandFile, error) {
		return loader.LoadDemandFile(cfg.Input.DemandFile)
	})
	if err != nil {
		return service.Inputs{}, err
	}
	for _, w := range df.Warnings {
		logger.Log.Warn("demand file", "path", cfg.Input.DemandFile, "warning", w)
	}

	zones, err := loader.Centroids(cfg.Input.CentroidFile, df.Matrix)
	if err != nil {
		return service.Inputs{}, err
	}

	net := nf.Network
	metrics.Get().RecordNetworkSize("load", net.NodeCount(), net.LinkCount())
	telemetry.SetAttributes(ctx, telemetry.NetworkAttributes(runName(cfg), net.NodeCount(), net.LinkCount())...)
	telemetry.SetAttributes(ctx, telemetry.DemandAttributes(zones.Len(), len(df.Matrix.Pairs()), df.Matrix.Total())...)

	logger.Log.Info("inputs loaded",
		slog.Int("nodes", net.NodeCount()),
		slog.Int("links", net.LinkCount()),
		slog.Int("zones", zones.Len()),
		slog.Int("od_pairs", len(df.Matrix.Pairs())),
		slog.Float64("total_demand", df.Matrix.Total()),
	)

	return service.Inputs{
		Name:    runName(cfg),
		Network: net,
		Zones:   zones,
		Demand:  df.Matrix,
	}, nil
}

// traced выполняет чтение одного файла в дочернем span
func traced[T any](ctx context.Context, name, path string, load func() (T, error)) (T, error) {
	ctx, span := telemetry.StartSpan(ctx, name, telemetry.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	v, err := load()
	if err != nil {
		telemetry.SetError(ctx, err)
	}
	return v, err
}

// writeReports пишет отчёты в output_dir. Без output_dir текстовый отчёт
// печатается в stdout, остальные форматы пишутся в текущий каталог.
func writeReports(ctx context.Context, cfg config.ReportConfig, data *report.ReportData, stdout io.Writer) error {
	formats := make([]report.Format, 0, len(cfg.Formats))
	for _, f := range cfg.Formats {
		format, err := report.ParseFormat(f)
		if err != nil {
			return err
		}
		formats = append(formats, format)
	}

	dir := cfg.OutputDir
	if dir == "" {
		dir = "."
		files := formats[:0]
		for _, format := range formats {
			if format != report.FormatText {
				files = append(files, format)
				continue
			}
			content, err := report.NewTextGenerator().Generate(ctx, data)
			if err != nil {
				return apperror.Wrap(err, apperror.CodeReport, "failed to generate text report")
			}
			if _, err := stdout.Write(content); err != nil {
				return apperror.Wrap(err, apperror.CodeReport, "failed to print text report")
			}
		}
		formats = files
	}
	if len(formats) == 0 {
		return nil
	}

	paths, err := report.WriteFiles(ctx, data, formats, dir)
	for _, p := range paths {
		fmt.Fprintf(stdout, "report: %s\n", p)
	}
	return err
}

// =========================================================================
// history
// =========================================================================

func listRuns(ctx context.Context, svc *service.AssignmentService, w io.Writer, limit int) error {
	runs, total, err := svc.ListRuns(ctx, &repository.ListOptions{
		Limit: limit,
		Sort:  repository.SortByCreatedDesc,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tITER\tGAP\tTSTT\tLINKS\tDURATION\tCREATED\tTAGS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.3e\t%.2f\t%d\t%s\t%s\t%s\n",
			r.ID, r.Name, r.State, r.Iterations, r.RelativeGap, r.TSTT, r.LinkCount,
			millis(r.DurationMs), r.CreatedAt.Format(time.RFC3339), strings.Join(r.Tags, ","))
	}
	if err := tw.Flush(); err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to print runs")
	}
	fmt.Fprintf(w, "%d of %d runs\n", len(runs), total)
	return nil
}

func showRun(ctx context.Context, svc *service.AssignmentService, w io.Writer, id uuid.UUID) error {
	run, err := svc.GetRun(ctx, id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", run.ID)
	fmt.Fprintf(tw, "Name\t%s\n", run.Name)
	fmt.Fprintf(tw, "Input hash\t%s\n", run.InputHash)
	fmt.Fprintf(tw, "State\t%s (%s)\n", run.State, run.StopReason)
	fmt.Fprintf(tw, "Iterations\t%d / %d\n", run.Iterations, run.MaxIterations)
	fmt.Fprintf(tw, "Relative gap\t%.6e (tol %g)\n", run.RelativeGap, run.Tolerance)
	fmt.Fprintf(tw, "TSTT / SPTT\t%.4f / %.4f\n", run.TSTT, run.SPTT)
	fmt.Fprintf(tw, "Network\t%d nodes, %d links, %d zones\n", run.NodeCount, run.LinkCount, run.ZoneCount)
	fmt.Fprintf(tw, "Demand\t%.2f (%d pairs dropped)\n", run.TotalDemand, run.DroppedPairs)
	fmt.Fprintf(tw, "Duration\t%s (cache hit: %t)\n", millis(run.DurationMs), run.CacheHit)
	fmt.Fprintf(tw, "Created\t%s\n", run.CreatedAt.Format(time.RFC3339))
	if len(run.Tags) > 0 {
		fmt.Fprintf(tw, "Tags\t%s\n", strings.Join(run.Tags, ", "))
	}
	if len(run.History) > 0 {
		fmt.Fprintln(tw, "\nIteration\tStep\tSPTT\tTSTT\tRelative gap")
		for _, h := range run.History {
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.4f\t%.6e\n", h.Iteration, h.Step, h.SPTT, h.TSTT, h.RelativeGap)
		}
	}
	if err := tw.Flush(); err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to print run")
	}
	return nil
}

func deleteRun(ctx context.Context, svc *service.AssignmentService, id uuid.UUID) error {
	if err := svc.DeleteRun(ctx, id); err != nil {
		return err
	}
	logger.Log.Info("run deleted", "run_id", id.String())
	return nil
}

func runStatistics(ctx context.Context, svc *service.AssignmentService, w io.Writer, window time.Duration) error {
	stats, err := svc.RunStatistics(ctx, window)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Runs\t%d\n", stats.TotalRuns)
	fmt.Fprintf(tw, "Cache hits\t%d\n", stats.CacheHits)
	fmt.Fprintf(tw, "Avg iterations\t%.1f\n", stats.AverageIterations)
	fmt.Fprintf(tw, "Avg relative gap\t%.3e\n", stats.AverageGap)
	fmt.Fprintf(tw, "Avg duration\t%s\n", millis(stats.AverageDurationMs))
	for _, state := range []string{"converged", "max_iter_reached"} {
		if n, ok := stats.RunsByState[state]; ok {
			fmt.Fprintf(tw, "State %s\t%d\n", state, n)
		}
	}
	if err := tw.Flush(); err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to print statistics")
	}
	return nil
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Millisecond)
}
