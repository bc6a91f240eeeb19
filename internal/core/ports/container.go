package ports

import (
	"context"
	"io"

	"github.com/melih/github-snap-builder/internal/core/domain"
)

// ContainerEngine is the subset of a container runtime the builders need.
// Adapters return errors matching domain.ErrNotFound for missing images and
// containers so callers can treat "already gone" as success.
type ContainerEngine interface {
	// CheckVersion fails with *domain.RuntimeVersionError when the runtime
	// is unreachable or speaks an unsupported API version.
	CheckVersion(ctx context.Context) error

	InspectImage(ctx context.Context, ref string) (domain.Image, error)
	RemoveImage(ctx context.Context, ref string) error
	// BuildImage builds contextDir/dockerfile, tags it and streams build
	// output to out.
	BuildImage(ctx context.Context, contextDir, dockerfile, tag string, out io.Writer) (string, error)

	CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error)
	// CopyFile writes content to path inside a created container.
	CopyFile(ctx context.Context, id, path string, content []byte) error
	// AttachContainer streams the container's output until it exits or ctx
	// is done. The returned channel yields once the stream has ended.
	AttachContainer(ctx context.Context, id string, stdout, stderr io.Writer) (<-chan error, error)
	// WaitContainer must be called before StartContainer.
	WaitContainer(ctx context.Context, id string) (<-chan int64, <-chan error)
	StartContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
}
