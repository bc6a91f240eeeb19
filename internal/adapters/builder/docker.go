package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/alessio/shellescape"
	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
	"github.com/melih/github-snap-builder/internal/metrics"
)

const (
	// ProjectDir is where the project (or artifact directory) is mounted.
	ProjectDir = "/snapcraft"
	// TokenPath receives the store credential before a release container starts.
	TokenPath = "/token"
)

var (
	buildCommand = []string{"sh", "-c", "apt update -qq && snapcraft"}
	managedEnv   = []string{"SNAPCRAFT_MANAGED_HOST=yes"}
)

// Docker builds and releases snaps inside containers.
type Docker struct {
	engine ports.ContainerEngine
	images *ImageCache
	runner *ContainerRunner
	logger *zap.Logger
}

// DockerOptions configures the containerized build implementation.
type DockerOptions struct {
	RecipeDir     string
	StreamTimeout time.Duration
}

// NewDocker verifies the runtime is usable before returning.
func NewDocker(ctx context.Context, engine ports.ContainerEngine, opts DockerOptions, logger *zap.Logger, m *metrics.Metrics) (*Docker, error) {
	if err := engine.CheckVersion(ctx); err != nil {
		return nil, err
	}
	return &Docker{
		engine: engine,
		images: NewImageCache(engine, opts.RecipeDir, logger, m),
		runner: NewContainerRunner(engine, opts.StreamTimeout, logger),
		logger: logger,
	}, nil
}

func (d *Docker) Build(ctx context.Context, projectDir, base string, sink ports.LogSink) error {
	image, err := d.images.Resolve(ctx, base, sink)
	if err != nil {
		return err
	}

	_, err = d.runner.Run(ctx, RunOptions{
		Image:      image,
		Command:    buildCommand,
		Env:        managedEnv,
		WorkingDir: ProjectDir,
		Mounts:     []domain.Mount{{Source: projectDir, Target: ProjectDir}},
	}, sink)
	return err
}

// Release logs in with the token file and pushes the artifact. The token is
// copied in rather than passed on the command line or environment.
func (d *Docker) Release(ctx context.Context, artifact *domain.Artifact, token, channel string, sink ports.LogSink) error {
	image, err := d.images.Resolve(ctx, artifact.Base, sink)
	if err != nil {
		return err
	}

	script := fmt.Sprintf("snapcraft login --with %s && snapcraft push %s --release=%s",
		TokenPath, shellescape.Quote(artifact.Name()), shellescape.Quote(channel))

	_, err = d.runner.Run(ctx, RunOptions{
		Image:      image,
		Command:    []string{"sh", "-c", script},
		Env:        managedEnv,
		WorkingDir: ProjectDir,
		Mounts:     []domain.Mount{{Source: artifact.Dir(), Target: ProjectDir}},
		PreStart: func(ctx context.Context, id string) error {
			return d.engine.CopyFile(ctx, id, TokenPath, []byte(token))
		},
	}, sink)
	return err
}
