package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIdentityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Show where bookmarks for the current directory are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][2]string
			err := a.do(cmd.Context(), func() error {
				r := a.engine.Resolver
				branch, ok := r.Branch()
				if !ok {
					branch = "(none)"
				}
				root := r.ScopeRoot()
				if root == "" {
					root = "(global)"
				}
				permanent := a.engine.Files.PermanentFile()
				if permanent == "" {
					permanent = "(disabled)"
				}
				rows = [][2]string{
					{"scope mode", string(a.cfg.ScopeMode)},
					{"scope root", root},
					{"scope key", r.ScopeKey()},
					{"branch", branch},
					{"branch key", r.BranchKey()},
					{"file list", a.engine.Files.BranchFile()},
					{"permanent list", permanent},
				}
				return nil
			})
			if err != nil {
				return err
			}

			for _, row := range rows {
				fmt.Fprintf(a.out, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-15s", row[0]+":")), row[1])
			}
			return nil
		},
	}
}
