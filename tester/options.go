package tester

import (
	"log/slog"

	"github.com/cschleiden/go-wfnet/backend/converter"
	"github.com/cschleiden/go-wfnet/core"
)

type options struct {
	MaxSteps  int
	Logger    *slog.Logger
	Converter converter.Converter
	Router    core.Router
}

type WorkflowTesterOption func(*options)

func WithLogger(logger *slog.Logger) WorkflowTesterOption {
	return func(o *options) {
		o.Logger = logger
	}
}

func WithConverter(converter converter.Converter) WorkflowTesterOption {
	return func(o *options) {
		o.Converter = converter
	}
}

// WithRouter sets the router deciding the splits of dummy and composite tasks.
func WithRouter(r core.Router) WorkflowTesterOption {
	return func(o *options) {
		o.Router = r
	}
}

// WithMaxSteps limits the number of rounds Execute drives the workflow before giving up. Nets with loops
// that are never left otherwise run forever.
func WithMaxSteps(n int) WorkflowTesterOption {
	return func(o *options) {
		o.MaxSteps = n
	}
}
