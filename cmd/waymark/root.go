package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

// skipEngine marks commands that run without an engine.
const skipEngine = "skip-engine"

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "waymark",
		Short: "Bookmark files and lines, scoped by project and branch",
		Long: `waymark keeps two kinds of bookmarks:

  file bookmarks   an ordered list of files per project (and branch), plus
                   permanent bookmarks that survive branch switches
  line bookmarks   {line, column} marks inside a file

Bookmarks are stored under save_path from ~/.waymark/config.yaml.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipEngine] != "" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.setup(cmd.Context())
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.waymark/config.yaml, or $WAYMARK_CONFIG)")
	root.PersistentFlags().StringVarP(&a.workDir, "dir", "C", "", "resolve the project from this directory instead of the current one")

	root.AddCommand(
		newListCmd(a),
		newAddCmd(a),
		newRemoveCmd(a),
		newToggleCmd(a),
		newClearCmd(a),
		newGoCmd(a),
		newNextCmd(a),
		newPrevCmd(a),
		newPathCmd(a),
		newLinesCmd(a),
		newMarkCmd(a),
		newUnmarkCmd(a),
		newIdentityCmd(a),
		newConfigCmd(a),
	)
	return root
}

// run executes one invocation. Teardown happens even when the command fails,
// so pending writes are flushed and the loop is stopped.
func run(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown(ctx))
}
