package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
)

// fakeImpl drops the configured snaps into the project on Build.
type fakeImpl struct {
	snaps      []string
	buildErr   error
	releaseErr error

	builtBases []string
	released   []string // channel per release
	releasedOK []bool   // whether the artifact existed at release time
	artifacts  []*domain.Artifact
}

func (f *fakeImpl) Build(ctx context.Context, projectDir, base string, sink ports.LogSink) error {
	f.builtBases = append(f.builtBases, base)
	if f.buildErr != nil {
		return f.buildErr
	}
	for _, name := range f.snaps {
		if err := os.WriteFile(filepath.Join(projectDir, name), []byte("snap"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeImpl) Release(ctx context.Context, artifact *domain.Artifact, token, channel string, sink ports.LogSink) error {
	f.released = append(f.released, channel)
	_, err := os.Stat(artifact.Path)
	f.releasedOK = append(f.releasedOK, err == nil)
	f.artifacts = append(f.artifacts, artifact)
	return f.releaseErr
}

// fakeWorkspaces hands out temp dirs seeded with files.
type fakeWorkspaces struct {
	root  string
	files map[string]string
	err   error

	prepared []*domain.Workspace
	requests [][3]string
}

func (f *fakeWorkspaces) Prepare(ctx context.Context, baseURL, headURL, commitSHA string, sink ports.LogSink) (*domain.Workspace, error) {
	f.requests = append(f.requests, [3]string{baseURL, headURL, commitSHA})
	if f.err != nil {
		return nil, f.err
	}
	dir, err := os.MkdirTemp(f.root, "ws-")
	if err != nil {
		return nil, err
	}
	for name, content := range f.files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	ws := &domain.Workspace{Dir: dir}
	f.prepared = append(f.prepared, ws)
	return ws, nil
}

type fakeStatusAPI struct {
	mu      sync.Mutex
	updates []domain.StatusUpdate
	err     error
}

func (f *fakeStatusAPI) CreateStatus(ctx context.Context, repo, sha string, status domain.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, status)
	return f.err
}

func (f *fakeStatusAPI) States() []domain.StatusState {
	f.mu.Lock()
	defer f.mu.Unlock()
	var states []domain.StatusState
	for _, u := range f.updates {
		states = append(states, u.State)
	}
	return states
}

func (f *fakeStatusAPI) Last() domain.StatusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

type memoryLog struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (l *memoryLog) WriteLine(stream, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, stream+": "+line)
}

func (l *memoryLog) Close() error {
	l.closed = true
	return nil
}

type memoryLogStore struct {
	logs map[string]*memoryLog
}

func (s *memoryLogStore) Open(repo, sha string) ports.BuildLog {
	if s.logs == nil {
		s.logs = map[string]*memoryLog{}
	}
	l := &memoryLog{}
	s.logs[repo+"@"+sha] = l
	return l
}

func (s *memoryLogStore) URL(repo, sha string) string {
	return "https://builder.example.com/logs/" + repo + "/" + sha + ".log"
}

var errBoom = errors.New("boom")
