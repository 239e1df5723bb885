package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"saga-transaction/internal/application/runner"
	"saga-transaction/internal/domain/saga"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type runOptions struct {
	definition string
	mode       string
	offline    bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one saga definition and print its final snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDefinition(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.definition, "definition", "", "path to a JSON saga definition")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "override the definition's mode: sequential or parallel")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "run without the database and Kafka")
	_ = cmd.MarkFlagRequired("definition")

	return cmd
}

func runDefinition(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	def, err := readDefinition(opts.definition)
	if err != nil {
		return err
	}
	if opts.mode != "" {
		if def.Mode, err = saga.ParseProcessMode(opts.mode); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := newDependencies(ctx, root.configPath, opts.offline)
	if err != nil {
		return err
	}
	defer deps.Close()

	snapshot, runErr := deps.runner.Run(ctx, def)
	if errors.Is(runErr, runner.ErrInvalidDefinition) {
		return runErr
	}

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if runErr != nil {
		return runErr
	}
	if snapshot.Status != saga.Completed {
		return errors.Errorf("saga %s finished %s, rollback %s", snapshot.TransactionID, snapshot.Status, snapshot.RollbackStatus)
	}
	return nil
}

func readDefinition(path string) (saga.Definition, error) {
	var def saga.Definition

	raw, err := os.ReadFile(path)
	if err != nil {
		return def, errors.Wrap(err, "failed to read definition")
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return def, errors.Wrapf(err, "failed to decode definition %s", path)
	}
	return def, nil
}
