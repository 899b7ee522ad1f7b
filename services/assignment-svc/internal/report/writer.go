package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/logger"
	"trafficassign/pkg/metrics"
	"trafficassign/pkg/telemetry"
)

// FileName имя файла отчёта: <base>_<run8><ext>
func FileName(base, runID string, format Format) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "assignment"
	}
	base = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, base)
	if len(runID) >= 8 {
		base += "_" + runID[:8]
	}
	return base + format.Extension()
}

// WriteFiles генерирует отчёты во всех форматах и пишет их в dir.
// Возвращает пути записанных файлов; первая ошибка прерывает запись.
func WriteFiles(ctx context.Context, data *ReportData, formats []Format, dir string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "report.WriteFiles")
	defer span.End()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeReport, "failed to create report directory")
	}

	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		timer := metrics.Get().ReportTimer(string(format))
		path, err := writeOne(ctx, data, format, dir)
		timer.ObserveDuration()
		metrics.Get().RecordReport(string(format), err == nil)
		if err != nil {
			telemetry.SetError(ctx, err)
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeOne(ctx context.Context, data *ReportData, format Format, dir string) (string, error) {
	gen, err := New(format)
	if err != nil {
		return "", err
	}

	telemetry.AddEvent(ctx, "report.generate", attribute.String(telemetry.AttrReportFmt, string(format)))
	content, err := gen.Generate(ctx, data)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeReport, fmt.Sprintf("failed to generate %s report", format))
	}

	path := filepath.Join(dir, FileName(data.Name, data.RunID, format))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", apperror.Wrap(err, apperror.CodeReport, "failed to write report").WithDetails("path", path)
	}

	logger.Info("report written",
		slog.String("format", string(format)),
		slog.String("path", path),
		slog.Int("bytes", len(content)),
	)
	return path, nil
}
