package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/registry"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate workflow definitions",
		ArgsUsage: "<file or directory>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return errors.New("no definitions given")
			}

			_, defs, err := loadRegistry(cmd.Args().Slice())
			if err != nil {
				return err
			}

			for _, v := range defs {
				fmt.Fprintf(cmd.Root().Writer, "ok\t%s\t%s\t%d tasks\n", v.Name, v.Version, len(v.Tasks))
			}

			return nil
		},
	}
}

// loadRegistry registers the definitions in the given files and directories. Sub-workflows referenced by
// composite tasks have to be part of the loaded definitions.
func loadRegistry(paths []string) (*registry.Registry, []*definition.WorkflowVersion, error) {
	var defs []*definition.WorkflowVersion

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, err
		}

		if info.IsDir() {
			d, err := definition.LoadDir(path)
			if err != nil {
				return nil, nil, err
			}
			defs = append(defs, d...)
			continue
		}

		v, err := definition.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		defs = append(defs, v)
	}

	r := registry.New()
	for _, v := range defs {
		if err := r.Register(v); err != nil {
			return nil, nil, fmt.Errorf("registering %s %s: %w", v.Name, v.Version, err)
		}
	}

	var errs []error
	for _, v := range defs {
		for _, t := range v.Tasks {
			if t.Kind != definition.KindComposite || t.Workflow == nil {
				continue
			}

			if _, err := r.Resolve(t.Workflow.Name, t.Workflow.Version); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: task %q: %w", v.Name, v.Version, t.Name, err))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}

	return r, defs, nil
}
