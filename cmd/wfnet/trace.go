package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/internal/logger"
	"github.com/cschleiden/go-wfnet/registry"
)

func traceCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.TimestampFlag{
			Name:  "at",
			Usage: "Print the state as of this time instead of the spans",
			Config: cli.TimestampConfig{
				Layouts: []string{time.RFC3339},
			},
		},
	}

	flags = append(flags, backendFlags()...)

	return &cli.Command{
		Name:      "trace",
		Usage:     "Print the audit trace of a workflow tree",
		ArgsUsage: "<trace id>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return errors.New("expected exactly one trace id")
			}

			log := logger.New(os.Stderr, cmd.Root().String("log-level"), cmd.Root().String("log-format"))

			b, err := openBackend(ctx, cmd, backend.WithLogger(log))
			if err != nil {
				return fmt.Errorf("opening backend: %w", err)
			}
			defer b.Close()

			// Queries need no definitions
			e := engine.New(b, registry.New())

			traceID := cmd.Args().First()
			out := cmd.Root().Writer

			if cmd.IsSet("at") {
				s, err := e.StateAt(ctx, traceID, cmd.Timestamp("at"))
				if err != nil {
					return err
				}

				printSnapshot(out, s)
				return nil
			}

			t, err := e.GetTrace(ctx, traceID)
			if err != nil {
				return err
			}

			spans, err := e.GetSpans(ctx, traceID)
			if err != nil {
				return err
			}

			printTrace(out, t, spans)
			return nil
		},
	}
}

func printTrace(w io.Writer, t *audit.Trace, spans []*audit.Span) {
	fmt.Fprintf(w, "trace %s: %d spans, %d events, %d workflow instances\n", t.ID, t.SpanCount, t.EventCount, len(t.WorkflowInstanceIDs))

	for _, s := range spans {
		name := s.ResourceName
		if name == "" {
			name = s.ResourceID
		}

		fmt.Fprintf(w, "%s %s%s %s %s\n",
			s.StartedAt.Format(time.RFC3339Nano),
			strings.Repeat("  ", s.Depth),
			s.Operation,
			name,
			s.State,
		)
	}
}

func printSnapshot(w io.Writer, s *audit.Snapshot) {
	fmt.Fprintf(w, "state at %s\n", s.At.Format(time.RFC3339Nano))

	for _, id := range slices.Sorted(maps.Keys(s.Workflows)) {
		fmt.Fprintf(w, "workflow %s %s\n", id, s.Workflows[id].State)
	}

	for _, id := range slices.Sorted(maps.Keys(s.Tasks)) {
		fmt.Fprintf(w, "task %s %s\n", id, s.Tasks[id].State)
	}

	for _, id := range slices.Sorted(maps.Keys(s.Conditions)) {
		fmt.Fprintf(w, "condition %s %d\n", id, s.Conditions[id].Marking)
	}
}
