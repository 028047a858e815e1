package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List file bookmarks, branch entries first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var list, permanent []string
			err := a.do(cmd.Context(), func() error {
				list = a.engine.Files.List()
				permanent = a.engine.Files.Permanent()
				return nil
			})
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Fprintln(a.out, labelStyle.Render("no bookmarks"))
				return nil
			}
			isPermanent := make(map[string]bool, len(permanent))
			for _, p := range permanent {
				isPermanent[p] = true
			}
			for i, p := range list {
				marker := " "
				if isPermanent[p] {
					marker = permanentStyle.Render("*")
				}
				fmt.Fprintf(a.out, "%s %s %s\n", indexStyle.Render(strconv.Itoa(i+1)), marker, p)
			}
			return nil
		},
	}
}

// absPaths resolves command line paths. Relative paths are taken from
// --dir when it is set, like git -C, and from the process directory
// otherwise.
func (a *app) absPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		p := arg
		if a.workDir != "" && !filepath.IsAbs(p) {
			p = filepath.Join(a.workDir, p)
		}
		p, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// newMutateCmd builds add, remove and toggle, which differ only in the store
// operation applied to each path.
func newMutateCmd(a *app, use, short string, op func(a *app, permanent bool, path string) error) *cobra.Command {
	var permanent bool
	cmd := &cobra.Command{
		Use:   use + " <path>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := a.absPaths(args)
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), func() error {
				for _, p := range paths {
					if err := op(a, permanent, p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&permanent, "permanent", "p", false, "use the permanent list, kept across branches")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	return newMutateCmd(a, "add", "Bookmark files", func(a *app, permanent bool, path string) error {
		if permanent {
			return a.engine.Files.SavePermanent(path)
		}
		return a.engine.Files.Save(path)
	})
}

func newRemoveCmd(a *app) *cobra.Command {
	return newMutateCmd(a, "remove", "Remove file bookmarks", func(a *app, permanent bool, path string) error {
		if permanent {
			return a.engine.Files.RemovePermanent(path)
		}
		return a.engine.Files.Remove(path)
	})
}

func newToggleCmd(a *app) *cobra.Command {
	return newMutateCmd(a, "toggle", "Bookmark files, or remove them if already bookmarked", func(a *app, permanent bool, path string) error {
		if permanent {
			return a.engine.Files.TogglePermanent(path)
		}
		return a.engine.Files.Toggle(path)
	})
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every branch bookmark; permanent bookmarks are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.do(cmd.Context(), a.engine.Files.Clear)
		},
	}
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid index %q: must be a positive number", s)
	}
	return n, nil
}

func newGoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "go <n>",
		Short: "Open the n-th bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), func() error {
				return a.engine.Files.GoTo(n)
			})
		},
	}
}

func newStepCmd(a *app, use, short string, forward bool) *cobra.Command {
	var local, global bool
	cmd := &cobra.Command{
		Use:   use + " [current-file]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if local && global {
				return fmt.Errorf("--local and --global are mutually exclusive")
			}
			current := ""
			if len(args) == 1 {
				paths, err := a.absPaths(args)
				if err != nil {
					return err
				}
				current = paths[0]
			}

			files := a.engine.Files
			var step func(string) error
			switch {
			case local && forward:
				step = files.NextLocal
			case local:
				step = files.PreviousLocal
			case global && forward:
				step = files.NextGlobal
			case global:
				step = files.PreviousGlobal
			case forward:
				step = files.Next
			default:
				step = files.Previous
			}
			return a.do(cmd.Context(), func() error { return step(current) })
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "only walk branch bookmarks")
	cmd.Flags().BoolVar(&global, "global", false, "only walk permanent bookmarks")
	return cmd
}

func newNextCmd(a *app) *cobra.Command {
	return newStepCmd(a, "next", "Open the bookmark after the current file", true)
}

func newPrevCmd(a *app) *cobra.Command {
	return newStepCmd(a, "prev", "Open the bookmark before the current file", false)
}

func newPathCmd(a *app) *cobra.Command {
	var copyPath bool
	cmd := &cobra.Command{
		Use:   "path <n>",
		Short: "Print the absolute path of the n-th bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseIndex(args[0])
			if err != nil {
				return err
			}

			var path string
			var ok bool
			if err := a.do(cmd.Context(), func() error {
				path, ok = a.engine.Files.Path(n)
				return nil
			}); err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no bookmark at index %d", n)
			}

			fmt.Fprintln(a.out, path)
			if copyPath {
				if err := clipboard.WriteAll(path); err != nil {
					return fmt.Errorf("failed to copy to clipboard: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyPath, "copy", false, "also copy the path to the clipboard")
	return cmd
}
