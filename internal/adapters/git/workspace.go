// Package git prepares source checkouts with go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
)

// ForkRemote is the remote name given to the pull request's head repository.
const ForkRemote = "fork"

// Provider clones workspaces under a temporary root.
type Provider struct {
	root   string
	logger *zap.Logger
}

// NewWorkspaceProvider returns a provider creating directories under root.
// An empty root uses the OS temp dir.
func NewWorkspaceProvider(root string, logger *zap.Logger) *Provider {
	return &Provider{root: root, logger: logger}
}

// Prepare clones baseURL, adds headURL as the fork remote, fetches it and
// force-checks-out commitSHA. The directory is removed on any failure.
func (p *Provider) Prepare(ctx context.Context, baseURL, headURL, commitSHA string, sink ports.LogSink) (*domain.Workspace, error) {
	dir, err := os.MkdirTemp(p.root, "snap-builder-")
	if err != nil {
		return nil, &domain.WorkspaceError{Step: "create workspace", Err: err}
	}
	ws := &domain.Workspace{Dir: dir}

	if err := p.checkout(ctx, dir, baseURL, headURL, commitSHA, sink); err != nil {
		if rmErr := ws.Remove(); rmErr != nil {
			p.logger.Warn("failed to remove workspace", zap.String("dir", dir), zap.Error(rmErr))
		}
		return nil, err
	}
	return ws, nil
}

func (p *Provider) checkout(ctx context.Context, dir, baseURL, headURL, commitSHA string, sink ports.LogSink) error {
	progress := &progressWriter{sink: sink}

	note(sink, fmt.Sprintf("Cloning %s", baseURL))
	repo, err := gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
		URL:      baseURL,
		Progress: progress,
	})
	if err != nil {
		return &domain.WorkspaceError{Step: "clone " + baseURL, Err: err}
	}

	remote, err := repo.CreateRemote(&config.RemoteConfig{
		Name: ForkRemote,
		URLs: []string{headURL},
	})
	if err != nil {
		return &domain.WorkspaceError{Step: "add remote " + headURL, Err: err}
	}

	note(sink, fmt.Sprintf("Fetching %s", headURL))
	err = remote.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: ForkRemote,
		RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/remotes/" + ForkRemote + "/*"},
		Progress:   progress,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return &domain.WorkspaceError{Step: "fetch " + headURL, Err: err}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return &domain.WorkspaceError{Step: "open worktree", Err: err}
	}
	note(sink, fmt.Sprintf("Checking out %s", commitSHA))
	if err := wt.Checkout(&gogit.CheckoutOptions{
		Hash:  plumbing.NewHash(commitSHA),
		Force: true,
	}); err != nil {
		return &domain.WorkspaceError{Step: "checkout " + commitSHA, Err: err}
	}

	p.logger.Debug("workspace ready", zap.String("dir", dir), zap.String("sha", commitSHA))
	return nil
}

func note(sink ports.LogSink, line string) {
	if sink != nil {
		sink.WriteLine("builder", line)
	}
}

// progressWriter forwards go-git sideband progress into the build log.
type progressWriter struct {
	sink ports.LogSink
}

func (w *progressWriter) Write(b []byte) (int, error) {
	if w.sink != nil {
		for _, line := range splitProgress(string(b)) {
			w.sink.WriteLine("stdout", line)
		}
	}
	return len(b), nil
}

// splitProgress breaks on both \n and \r, which git uses for in-place updates.
func splitProgress(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
