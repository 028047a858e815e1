package identity

import (
	"context"
	"errors"
	"sync"
)

// fakeBackend answers from fields. With blocking set, every Branch call
// parks until the test releases it through release.
type fakeBackend struct {
	mu          sync.Mutex
	branch      string
	branchErr   error
	isRepo      bool
	toplevel    string
	commonDir   string
	branchCalls int
	repoCalls   int
	rootCalls   int

	blocking bool
	parked   []chan string
}

func (f *fakeBackend) Branch(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.branchCalls++
	if f.blocking {
		ch := make(chan string)
		f.parked = append(f.parked, ch)
		f.mu.Unlock()
		return <-ch, nil
	}
	branch, err := f.branch, f.branchErr
	f.mu.Unlock()
	return branch, err
}

func (f *fakeBackend) IsRepo(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repoCalls++
	return f.isRepo, nil
}

func (f *fakeBackend) Toplevel(_ context.Context, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rootCalls++
	if f.toplevel == "" {
		return "", errors.New("not a git repository")
	}
	return f.toplevel, nil
}

func (f *fakeBackend) CommonDir(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rootCalls++
	if f.commonDir == "" {
		return "", errors.New("not a git repository")
	}
	return f.commonDir, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branchCalls
}

func (f *fakeBackend) parkedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.parked)
}

// release completes the i-th parked call with branch.
func (f *fakeBackend) release(i int, branch string) {
	f.mu.Lock()
	ch := f.parked[i]
	f.mu.Unlock()
	ch <- branch
}
