// Package opener turns a resolved bookmark path into an action: opening it
// in the user's editor, in a split, or printing it.
package opener

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/entrhq/waymark/pkg/config"
)

// Opener opens files with a configured action.
type Opener struct {
	action string
	out    io.Writer

	// lookupEnv and lookPath are replaced in tests.
	lookupEnv func(string) string
	lookPath  func(string) (string, error)
	run       func(*exec.Cmd) error
}

// New creates an opener for action. Print writes paths to out.
func New(action string, out io.Writer) *Opener {
	if action == "" {
		action = config.OpenEdit
	}
	if out == nil {
		out = os.Stdout
	}
	return &Opener{
		action:    action,
		out:       out,
		lookupEnv: os.Getenv,
		lookPath:  exec.LookPath,
		run:       (*exec.Cmd).Run,
	}
}

// Action returns the configured action.
func (o *Opener) Action() string {
	return o.action
}

// Open performs the configured action on path.
func (o *Opener) Open(path string) error {
	if o.action == config.OpenPrint {
		_, err := fmt.Fprintln(o.out, path)
		return err
	}

	cmd, err := o.Command(path)
	if err != nil {
		return err
	}
	return o.run(cmd)
}

// Command returns the editor invocation for path.
func (o *Opener) Command(path string) (*exec.Cmd, error) {
	editor := o.findEditor()
	if editor == "" {
		return nil, fmt.Errorf("no editor found: set $EDITOR environment variable")
	}

	// $EDITOR may carry arguments, as in "code --wait".
	fields := strings.Fields(editor)
	args := append(fields[1:], splitArgs(fields[0], o.action)...)
	args = append(args, path)

	cmd := exec.Command(fields[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// splitArgs returns the editor-specific flags for a split action. Editors
// without split support open the file in place.
func splitArgs(editor, action string) []string {
	name := filepath.Base(editor)
	vimLike := name == "vim" || name == "nvim" || name == "vi"

	switch action {
	case config.OpenVSplit:
		if vimLike {
			return []string{"-O"}
		}
	case config.OpenHSplit:
		if vimLike {
			return []string{"-o"}
		}
	}
	return nil
}

// findEditor returns the editor to use
func (o *Opener) findEditor() string {
	if editor := o.lookupEnv("EDITOR"); editor != "" {
		return editor
	}
	if visual := o.lookupEnv("VISUAL"); visual != "" {
		return visual
	}

	editors := []string{"nvim", "vim", "vi", "nano", "code"}
	for _, editor := range editors {
		if path, err := o.lookPath(editor); err == nil {
			return path
		}
	}
	return ""
}
