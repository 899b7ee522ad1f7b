package assignment

import (
	"log/slog"
	"time"

	"trafficassign/pkg/apperror"
)

// Default solver settings.
const (
	DefaultMaxIterations = 1000
	DefaultTolerance     = 1e-4
	DefaultProgressEvery = 10
)

// UnreachablePolicy decides what happens to OD pairs without a path.
type UnreachablePolicy string

const (
	// PolicyFail aborts the solve with UNREACHABLE_DESTINATION.
	PolicyFail UnreachablePolicy = "fail"
	// PolicySkip drops the pair and logs a warning.
	PolicySkip UnreachablePolicy = "skip"
)

// ProgressFunc receives iteration statistics.
type ProgressFunc func(IterationStat)

// Options configures a Solver.
type Options struct {
	MaxIterations     int
	Tolerance         float64
	Workers           int
	ProgressEvery     int
	MaxDuration       time.Duration // 0 means no wall-clock limit
	UnreachablePolicy UnreachablePolicy
	KeepHistory       bool

	Progress ProgressFunc
	Logger   *slog.Logger
	Clock    func() time.Time
}

// DefaultOptions returns the default solver options.
func DefaultOptions() Options {
	return Options{
		MaxIterations:     DefaultMaxIterations,
		Tolerance:         DefaultTolerance,
		ProgressEvery:     DefaultProgressEvery,
		UnreachablePolicy: PolicyFail,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	ve := apperror.NewValidationErrors()

	if o.MaxIterations <= 0 {
		ve.AddErrorWithField(apperror.CodeInvalidOptions, "max iterations must be positive", "max_iterations")
	}
	if !(o.Tolerance > 0) {
		ve.AddErrorWithField(apperror.CodeInvalidOptions, "tolerance must be positive", "tolerance")
	}
	if o.Workers < 0 {
		ve.AddErrorWithField(apperror.CodeInvalidOptions, "workers cannot be negative", "workers")
	}
	if o.ProgressEvery < 0 {
		ve.AddErrorWithField(apperror.CodeInvalidOptions, "progress interval cannot be negative", "progress_every")
	}
	if o.MaxDuration < 0 {
		ve.AddErrorWithField(apperror.CodeInvalidOptions, "max duration cannot be negative", "max_duration")
	}
	switch o.UnreachablePolicy {
	case "", PolicyFail, PolicySkip:
	default:
		ve.AddErrorWithField(apperror.CodeInvalidOptions,
			"unreachable policy must be fail or skip, got "+string(o.UnreachablePolicy), "unreachable_policy")
	}

	return ve.Err(apperror.CodeInvalidOptions, "invalid solver options")
}

func (o Options) skipUnreachable() bool {
	return o.UnreachablePolicy == PolicySkip
}

func (o Options) progressEvery() int {
	if o.ProgressEvery <= 0 {
		return DefaultProgressEvery
	}
	return o.ProgressEvery
}
