package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/entrhq/waymark/pkg/linemarks"
)

// sourceFile is a file read for line bookmark commands.
type sourceFile struct {
	path  string
	lines [][]byte
}

func readSource(a *app, arg string) (*sourceFile, error) {
	paths, err := a.absPaths([]string{arg})
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", arg, err)
	}

	lines := bytes.Split(data, []byte("\n"))
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
		lines = lines[:n-1]
	}
	return &sourceFile{path: paths[0], lines: lines}, nil
}

// line returns the 1-based line, or nil past the end.
func (f *sourceFile) line(n int) []byte {
	if n < 1 || n > len(f.lines) {
		return nil
	}
	return f.lines[n-1]
}

func newLinesCmd(a *app) *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "lines <file>",
		Short: "List the line bookmarks of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(a, args[0])
			if err != nil {
				return err
			}

			var marks []linemarks.Bookmark
			if err := a.do(cmd.Context(), func() error {
				id, err := a.engine.OpenDocument(src.path, len(src.lines))
				if err != nil {
					return err
				}
				marks = a.engine.Lines.Get(id)
				return nil
			}); err != nil {
				return err
			}

			if len(marks) == 0 {
				fmt.Fprintln(a.out, labelStyle.Render("no line bookmarks"))
				return nil
			}
			for i, m := range marks {
				pos := lineStyle.Render(fmt.Sprintf("%d:%d", m.Line, m.Col))
				if !preview {
					fmt.Fprintf(a.out, "%s %s\n", indexStyle.Render(strconv.Itoa(i+1)), pos)
					continue
				}
				text, err := highlight(src.path, src.line(m.Line))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s  %s\n", indexStyle.Render(strconv.Itoa(i+1)), pos, text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "show the bookmarked lines, syntax highlighted")
	return cmd
}

func newMarkCmd(a *app) *cobra.Command {
	var toggle bool
	cmd := &cobra.Command{
		Use:   "mark <file> <line> [col]",
		Short: "Bookmark a line of a file",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(a, args[0])
			if err != nil {
				return err
			}
			line, err := strconv.Atoi(args[1])
			if err != nil || line < 1 {
				return fmt.Errorf("invalid line %q", args[1])
			}
			col := 0
			if len(args) == 3 {
				if col, err = strconv.Atoi(args[2]); err != nil || col < 0 {
					return fmt.Errorf("invalid column %q", args[2])
				}
			}
			if line > len(src.lines) {
				return fmt.Errorf("%s has only %d lines", args[0], len(src.lines))
			}

			return a.do(cmd.Context(), func() error {
				id, err := a.engine.OpenDocument(src.path, len(src.lines))
				if err != nil {
					return err
				}
				if toggle {
					return a.engine.Lines.Toggle(id, line, col)
				}
				return a.engine.Lines.Save(id, line, col)
			})
		},
	}
	cmd.Flags().BoolVarP(&toggle, "toggle", "t", false, "remove the bookmark if the line already has one")
	return cmd
}

func newUnmarkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unmark <file> <index>",
		Short: "Remove the index-th line bookmark of a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(a, args[0])
			if err != nil {
				return err
			}
			n, err := parseIndex(args[1])
			if err != nil {
				return err
			}

			return a.do(cmd.Context(), func() error {
				id, err := a.engine.OpenDocument(src.path, len(src.lines))
				if err != nil {
					return err
				}
				a.engine.Lines.Remove(n, id)
				return nil
			})
		},
	}
}
