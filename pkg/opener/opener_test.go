package opener

import (
	"bytes"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/waymark/pkg/config"
)

func withEnv(o *Opener, env map[string]string, onPath ...string) *Opener {
	o.lookupEnv = func(k string) string { return env[k] }
	o.lookPath = func(name string) (string, error) {
		for _, p := range onPath {
			if p == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
	return o
}

func TestOpener_Print(t *testing.T) {
	var buf bytes.Buffer
	o := New(config.OpenPrint, &buf)

	require.NoError(t, o.Open("/src/app/main.go"))
	assert.Equal(t, "/src/app/main.go\n", buf.String())
}

func TestOpener_Command(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		env      map[string]string
		onPath   []string
		wantArgs []string
	}{
		{
			name:     "editor from EDITOR",
			action:   config.OpenEdit,
			env:      map[string]string{"EDITOR": "nvim", "VISUAL": "code"},
			wantArgs: []string{"nvim", "/f.go"},
		},
		{
			name:     "VISUAL when EDITOR unset",
			action:   config.OpenEdit,
			env:      map[string]string{"VISUAL": "hx"},
			wantArgs: []string{"hx", "/f.go"},
		},
		{
			name:     "editor with arguments",
			action:   config.OpenEdit,
			env:      map[string]string{"EDITOR": "code --wait"},
			wantArgs: []string{"code", "--wait", "/f.go"},
		},
		{
			name:     "vertical split in vim",
			action:   config.OpenVSplit,
			env:      map[string]string{"EDITOR": "/usr/local/bin/vim"},
			wantArgs: []string{"/usr/local/bin/vim", "-O", "/f.go"},
		},
		{
			name:     "horizontal split in nvim",
			action:   config.OpenHSplit,
			env:      map[string]string{"EDITOR": "nvim"},
			wantArgs: []string{"nvim", "-o", "/f.go"},
		},
		{
			name:     "split ignored by other editors",
			action:   config.OpenVSplit,
			env:      map[string]string{"EDITOR": "nano"},
			wantArgs: []string{"nano", "/f.go"},
		},
		{
			name:     "fallback list",
			action:   config.OpenEdit,
			onPath:   []string{"vi", "nano"},
			wantArgs: []string{"/usr/bin/vi", "/f.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := withEnv(New(tt.action, nil), tt.env, tt.onPath...)
			cmd, err := o.Command("/f.go")
			require.NoError(t, err)
			assert.Equal(t, tt.wantArgs, cmd.Args)
		})
	}
}

func TestOpener_NoEditor(t *testing.T) {
	o := withEnv(New(config.OpenEdit, nil), nil)

	err := o.Open("/f.go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no editor found")
}

func TestOpener_RunsCommand(t *testing.T) {
	o := withEnv(New(config.OpenEdit, nil), map[string]string{"EDITOR": "vim"})
	var ran []string
	o.run = func(cmd *exec.Cmd) error {
		ran = cmd.Args
		return nil
	}

	require.NoError(t, o.Open("/f.go"))
	assert.Equal(t, []string{"vim", "/f.go"}, ran)
}
