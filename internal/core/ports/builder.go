package ports

import (
	"context"

	"github.com/melih/github-snap-builder/internal/core/domain"
)

// BuildImplementation is one strategy for running snapcraft. Build runs in
// projectDir against base and leaves its output there; Release pushes an
// artifact and releases it to channel.
type BuildImplementation interface {
	Build(ctx context.Context, projectDir, base string, sink LogSink) error
	Release(ctx context.Context, artifact *domain.Artifact, token, channel string, sink LogSink) error
}

// WorkspaceProvider produces a checkout of commitSHA. The caller owns the
// returned workspace and must remove it.
type WorkspaceProvider interface {
	Prepare(ctx context.Context, baseURL, headURL, commitSHA string, sink LogSink) (*domain.Workspace, error)
}
