package filemarks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/waymark/pkg/pathmatch"
	"github.com/entrhq/waymark/pkg/types"
)

type fakeIdentity struct {
	scope  string
	branch string
	root   string
}

func (f *fakeIdentity) ScopeKey() string  { return f.scope }
func (f *fakeIdentity) ScopeRoot() string { return f.root }
func (f *fakeIdentity) BranchKey() string {
	if f.branch == "" {
		return f.scope
	}
	return f.scope + "-" + f.branch
}

type recordingOpener struct {
	opened []string
}

func (r *recordingOpener) Open(path string) error {
	r.opened = append(r.opened, path)
	return nil
}

func (r *recordingOpener) last() string {
	if len(r.opened) == 0 {
		return ""
	}
	return r.opened[len(r.opened)-1]
}

type harness struct {
	store    *Store
	identity *fakeIdentity
	opener   *recordingOpener
	events   []types.Event
	dir      string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		identity: &fakeIdentity{scope: "-work-project", branch: "main", root: "/work/project"},
		opener:   &recordingOpener{},
		dir:      t.TempDir(),
	}
	opts.Dir = h.dir
	h.store = New(opts, h.identity, h.opener, types.EmitterFunc(func(ev types.Event) {
		h.events = append(h.events, ev)
	}), nil)
	h.store.LoadCacheFile()
	return h
}

func branchOpts() Options {
	return Options{SeparateByBranch: true, RelativePath: true}
}

func TestStore_SaveIsIdempotent(t *testing.T) {
	h := newHarness(t, branchOpts())

	require.NoError(t, h.store.Save("/work/project/main.go"))
	require.NoError(t, h.store.Save("/work/project/main.go"))

	assert.Equal(t, []string{"./main.go"}, h.store.List())
	assert.Len(t, h.events, 1)
	assert.Equal(t, types.EventTypeBookmarksUpdated, h.events[0].Type)
}

func TestStore_MutualExclusion(t *testing.T) {
	h := newHarness(t, branchOpts())
	const path = "/work/project/cmd/root.go"

	require.NoError(t, h.store.Save(path))
	require.NoError(t, h.store.SavePermanent(path))

	assert.Empty(t, h.store.Branch())
	i, ok := h.store.IsSavedPermanent(path)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	require.NoError(t, h.store.Save(path))

	assert.Equal(t, []string{"./cmd/root.go"}, h.store.Branch())
	_, ok = h.store.IsSavedPermanent(path)
	assert.False(t, ok)
	assert.Empty(t, h.store.Permanent())
}

func TestStore_MergeOrder(t *testing.T) {
	h := newHarness(t, branchOpts())

	require.NoError(t, h.store.SavePermanent("/work/project/p1"))
	require.NoError(t, h.store.Save("/work/project/b1"))
	require.NoError(t, h.store.Save("/work/project/b2"))

	assert.Equal(t, []string{"./b1", "./b2", "./p1"}, h.store.List())

	i, ok := h.store.IsSaved("/work/project/p1")
	assert.True(t, ok)
	assert.Equal(t, 3, i)
}

func TestStore_MergeDropsOverlap(t *testing.T) {
	h := newHarness(t, branchOpts())
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "-work-project-main"), []byte("./a\n./b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "-work-project.permanent"), []byte("./a\n./c\n"), 0o644))

	h.store.LoadCacheFile()
	assert.Equal(t, []string{"./a", "./b", "./c"}, h.store.List())

	// Remove prefers the permanent list.
	require.NoError(t, h.store.Remove("./a"))
	assert.Equal(t, []string{"./a", "./b"}, h.store.Branch())
	assert.Equal(t, []string{"./c"}, h.store.Permanent())
}

func TestStore_Wraparound(t *testing.T) {
	h := newHarness(t, branchOpts())
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, h.store.Save(filepath.Join("/work/project", p)))
	}

	tests := []struct {
		name    string
		move    func(string) error
		current string
		want    string
	}{
		{name: "next from middle", move: h.store.Next, current: "/work/project/b", want: "/work/project/c"},
		{name: "previous from middle", move: h.store.Previous, current: "/work/project/b", want: "/work/project/a"},
		{name: "next from last wraps", move: h.store.Next, current: "/work/project/c", want: "/work/project/a"},
		{name: "previous from first wraps", move: h.store.Previous, current: "/work/project/a", want: "/work/project/c"},
		{name: "next from absent", move: h.store.Next, current: "/work/project/zzz", want: "/work/project/a"},
		{name: "previous from absent", move: h.store.Previous, current: "/work/project/zzz", want: "/work/project/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.move(tt.current))
			assert.Equal(t, tt.want, h.opener.last())
		})
	}
}

func TestWraparoundIndexes(t *testing.T) {
	if got := nextIndex(0, 3); got != 1 {
		t.Errorf("nextIndex(absent) = %d, want 1", got)
	}
	if got := nextIndex(3, 3); got != 1 {
		t.Errorf("nextIndex(last) = %d, want 1", got)
	}
	if got := previousIndex(0, 3); got != 3 {
		t.Errorf("previousIndex(absent) = %d, want 3", got)
	}
	if got := previousIndex(2, 3); got != 1 {
		t.Errorf("previousIndex(2) = %d, want 1", got)
	}
}

func TestStore_NavigationOnEmptyList(t *testing.T) {
	h := newHarness(t, branchOpts())

	require.NoError(t, h.store.Next("/work/project/a"))
	require.NoError(t, h.store.PreviousGlobal("/work/project/a"))
	require.NoError(t, h.store.GoTo(1))
	assert.Empty(t, h.opener.opened)
}

func TestStore_LocalAndGlobalNavigation(t *testing.T) {
	h := newHarness(t, branchOpts())
	require.NoError(t, h.store.Save("/work/project/b1"))
	require.NoError(t, h.store.Save("/work/project/b2"))
	require.NoError(t, h.store.SavePermanent("/work/project/p1"))
	require.NoError(t, h.store.SavePermanent("/work/project/p2"))

	require.NoError(t, h.store.NextLocal("/work/project/b2"))
	assert.Equal(t, "/work/project/b1", h.opener.last())

	require.NoError(t, h.store.PreviousLocal("/work/project/p1"))
	assert.Equal(t, "/work/project/b2", h.opener.last())

	require.NoError(t, h.store.NextGlobal("/work/project/p1"))
	assert.Equal(t, "/work/project/p2", h.opener.last())

	require.NoError(t, h.store.PreviousGlobal("/work/project/b1"))
	assert.Equal(t, "/work/project/p2", h.opener.last())
}

func TestStore_GoTo(t *testing.T) {
	h := newHarness(t, branchOpts())
	require.NoError(t, h.store.Save("/work/project/docs/readme.md"))
	require.NoError(t, h.store.Save("/outside/notes.txt"))

	require.NoError(t, h.store.GoTo(1))
	assert.Equal(t, "/work/project/docs/readme.md", h.opener.last())

	require.NoError(t, h.store.GoTo(2))
	assert.Equal(t, "/outside/notes.txt", h.opener.last())

	require.NoError(t, h.store.GoTo(0))
	require.NoError(t, h.store.GoTo(3))
	assert.Len(t, h.opener.opened, 2, "out of range indexes do nothing")
}

func TestStore_ClearKeepsPermanent(t *testing.T) {
	h := newHarness(t, branchOpts())
	require.NoError(t, h.store.Save("/work/project/a"))
	require.NoError(t, h.store.SavePermanent("/work/project/p"))

	require.NoError(t, h.store.Clear())

	assert.Empty(t, h.store.Branch())
	assert.Equal(t, []string{"./p"}, h.store.List())
}

func TestStore_Toggle(t *testing.T) {
	h := newHarness(t, branchOpts())
	const path = "/work/project/a"

	require.NoError(t, h.store.Toggle(path))
	_, ok := h.store.IsSaved(path)
	assert.True(t, ok)

	require.NoError(t, h.store.Toggle(path))
	_, ok = h.store.IsSaved(path)
	assert.False(t, ok)

	require.NoError(t, h.store.TogglePermanent(path))
	_, ok = h.store.IsSavedPermanent(path)
	assert.True(t, ok)

	require.NoError(t, h.store.TogglePermanent(path))
	assert.Empty(t, h.store.List())
}

func TestStore_PermanentFallsBackWithoutBranchSeparation(t *testing.T) {
	h := newHarness(t, Options{RelativePath: true})

	require.NoError(t, h.store.SavePermanent("/work/project/a"))

	assert.Equal(t, []string{"./a"}, h.store.Branch())
	assert.Empty(t, h.store.Permanent())
	assert.Empty(t, h.store.PermanentFile())

	_, err := os.Stat(filepath.Join(h.dir, "-work-project.permanent"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, h.store.RemovePermanent("/work/project/a"))
	assert.Empty(t, h.store.List())
}

func TestStore_Exclude(t *testing.T) {
	m, err := pathmatch.New([]string{"*.log", "**/node_modules/**"})
	require.NoError(t, err)
	opts := branchOpts()
	opts.Exclude = m
	h := newHarness(t, opts)

	require.NoError(t, h.store.Save("/work/project/build.log"))
	require.NoError(t, h.store.SavePermanent("/work/project/web/node_modules/x/index.js"))
	require.NoError(t, h.store.Save("/work/project/main.go"))

	assert.Equal(t, []string{"./main.go"}, h.store.List())
}

func TestStore_IdentityChange(t *testing.T) {
	h := newHarness(t, branchOpts())
	require.NoError(t, h.store.Save("/work/project/on-main"))
	require.NoError(t, h.store.SavePermanent("/work/project/shared"))

	h.identity.branch = "feature"
	h.store.LoadCacheFile()

	assert.Empty(t, h.store.Branch())
	assert.Equal(t, []string{"./shared"}, h.store.List())

	require.NoError(t, h.store.Save("/work/project/on-feature"))

	h.identity.branch = "main"
	h.store.LoadCacheFile()
	assert.Equal(t, []string{"./on-main", "./shared"}, h.store.List())
}

func TestStore_Normalize(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		in   string
		want string
	}{
		{name: "inside root", opts: Options{RelativePath: true}, in: "/work/project/a/b.go", want: "./a/b.go"},
		{name: "already relative", opts: Options{RelativePath: true}, in: "a/b.go", want: "./a/b.go"},
		{name: "dot prefixed", opts: Options{RelativePath: true}, in: "./a/../b.go", want: "./b.go"},
		{name: "whitespace keeps bare form", opts: Options{RelativePath: true}, in: "/work/project/my notes.md", want: "my notes.md"},
		{name: "outside root stays absolute", opts: Options{RelativePath: true}, in: "/etc/hosts", want: "/etc/hosts"},
		{name: "absolute mode", opts: Options{}, in: "a/b.go", want: "/work/project/a/b.go"},
		{name: "global keeps absolute", opts: Options{Global: true, RelativePath: true}, in: "/tmp/x", want: "/tmp/x"},
		{name: "empty", opts: Options{RelativePath: true}, in: "  ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.opts, &fakeIdentity{scope: "k", root: "/work/project"}, nil, nil, nil)
			assert.Equal(t, tt.want, s.Normalize(tt.in))
		})
	}
}

func TestStore_MissingFilesAreEmpty(t *testing.T) {
	h := newHarness(t, branchOpts())
	assert.Empty(t, h.store.List())

	_, ok := h.store.IsSaved("/work/project/a")
	assert.False(t, ok)
}

func TestStore_FileFormat(t *testing.T) {
	h := newHarness(t, branchOpts())
	require.NoError(t, h.store.Save("/work/project/cmd/waymark/main.go"))
	require.NoError(t, h.store.Save("/work/project/pkg/engine/engine.go"))
	require.NoError(t, h.store.Save("/work/project/docs/release notes.md"))
	require.NoError(t, h.store.SavePermanent("/work/project/go.mod"))

	branch, err := os.ReadFile(filepath.Join(h.dir, "-work-project-main"))
	require.NoError(t, err)
	permanent, err := os.ReadFile(filepath.Join(h.dir, "-work-project.permanent"))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "branch_list", branch)
	g.Assert(t, "permanent_list", permanent)
}
