package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/waymark/pkg/config"
	"github.com/entrhq/waymark/pkg/scheduler"
	"github.com/entrhq/waymark/pkg/types"
)

type fakeBackend struct {
	mu     sync.Mutex
	branch string
	calls  int
}

func (f *fakeBackend) Branch(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.branch, nil
}

func (f *fakeBackend) IsRepo(context.Context, string) (bool, error) { return true, nil }

func (f *fakeBackend) Toplevel(context.Context, string) (string, error) {
	return "", errors.New("not supported")
}

func (f *fakeBackend) CommonDir(context.Context, string) (string, error) {
	return "", errors.New("not supported")
}

type recordingOpener struct {
	opened []string
}

func (r *recordingOpener) Open(path string) error {
	r.opened = append(r.opened, path)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.SavePath = t.TempDir()
	cfg.SeparateByBranch = true
	cfg.Exclude = []string{"*.lock"}
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, backend *fakeBackend) (*Engine, *scheduler.Manual, *recordingOpener) {
	t.Helper()
	sched := scheduler.NewManual(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	open := &recordingOpener{}
	e, err := New(context.Background(), Options{
		Config:     cfg,
		WorkingDir: "/work/project",
		Scheduler:  sched,
		Backend:    backend,
		Opener:     open,
	})
	require.NoError(t, err)
	return e, sched, open
}

func TestNew_ResolvesBranchUpFront(t *testing.T) {
	backend := &fakeBackend{branch: "main"}
	e, _, _ := newTestEngine(t, testConfig(t), backend)

	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, "-work-project-main", e.Resolver.BranchKey())
	assert.Equal(t, filepath.Join(e.Config().SavePath, "files", "-work-project-main"), e.Files.BranchFile())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScopeMode = "workspace"
	_, err := New(context.Background(), Options{Config: cfg, Scheduler: scheduler.NewManual(time.Now())})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{Config: testConfig(t)})
	assert.Error(t, err)
}

func TestEngine_OpenDocumentLoadsOnce(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(t), &fakeBackend{branch: "main"})
	var loads int
	e.Events.Subscribe(func(ev types.Event) {
		if ev.Type == types.EventTypeMarksUpdated {
			loads++
		}
	})

	id, err := e.OpenDocument("/work/project/main.go", 20)
	require.NoError(t, err)
	again, err := e.OpenDocument("/work/project/main.go", 20)
	require.NoError(t, err)

	assert.Equal(t, id, again)
	assert.Equal(t, 1, loads)
	assert.True(t, e.Lines.Loaded(id))
}

func TestEngine_ExcludedDocumentNotLoaded(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(t), &fakeBackend{branch: "main"})

	id, err := e.OpenDocument("/work/project/go.lock", 20)
	require.NoError(t, err)
	assert.False(t, e.Lines.Loaded(id))
}

func TestEngine_CloseFlushesPendingWrites(t *testing.T) {
	cfg := testConfig(t)
	e, sched, _ := newTestEngine(t, cfg, &fakeBackend{branch: "main"})

	id, err := e.OpenDocument("/work/project/main.go", 20)
	require.NoError(t, err)
	require.NoError(t, e.Lines.Save(id, 4, 2))
	assert.Equal(t, 1, sched.ActiveTimers())

	require.NoError(t, e.Close())

	data, err := os.ReadFile(e.Lines.FileFor("/work/project/main.go"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"line":4,"col":2}]`, string(data))
	assert.Equal(t, 0, sched.ActiveTimers())
}

func TestEngine_CloseDocument(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(t), &fakeBackend{branch: "main"})

	id, err := e.OpenDocument("/work/project/main.go", 20)
	require.NoError(t, err)
	require.NoError(t, e.Lines.Save(id, 1, 0))
	require.NoError(t, e.CloseDocument(id))

	assert.False(t, e.Lines.Loaded(id))
	_, ok := e.Workspace.Get(id)
	assert.False(t, ok)
	assert.ErrorIs(t, e.CloseDocument(id), types.ErrUnknownDocument)

	reopened, err := e.OpenDocument("/work/project/main.go", 20)
	require.NoError(t, err)
	assert.Len(t, e.Lines.Get(reopened), 1)
}

func TestEngine_FileMarksAndBranchSwitch(t *testing.T) {
	e, sched, open := newTestEngine(t, testConfig(t), &fakeBackend{branch: "main"})
	var changes int
	e.Events.Subscribe(func(ev types.Event) {
		if ev.Type == types.EventTypeIdentityChanged {
			changes++
		}
	})

	require.NoError(t, e.Files.Save("/work/project/a.go"))
	require.NoError(t, e.Files.SavePermanent("/work/project/b.go"))
	require.NoError(t, e.Files.GoTo(2))
	assert.Equal(t, []string{"/work/project/b.go"}, open.opened)

	e.Coordinator.OnBranchChanged("feature")
	sched.RunPending()

	assert.Equal(t, 1, changes)
	assert.Equal(t, []string{"./b.go"}, e.Files.List())
}

func TestEngine_GlobalMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScopeMode = config.ScopeGlobal
	backend := &fakeBackend{branch: "main"}
	e, _, _ := newTestEngine(t, cfg, backend)

	assert.Zero(t, backend.calls)
	assert.Equal(t, "global", e.Resolver.BranchKey())

	require.NoError(t, e.Files.SavePermanent("/tmp/notes.txt"))
	assert.Equal(t, []string{"/tmp/notes.txt"}, e.Files.Branch())
}
