package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
	"github.com/melih/github-snap-builder/internal/metrics"
)

// Pipeline takes one pull request commit from checkout to release and keeps
// GitHub informed along the way.
type Pipeline struct {
	workspaces ports.WorkspaceProvider
	impl       ports.BuildImplementation
	builder    *SnapBuilder
	logs       ports.LogStore
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// PipelineOptions wires a Pipeline.
type PipelineOptions struct {
	Workspaces  ports.WorkspaceProvider
	Builder     ports.BuildImplementation
	Logs        ports.LogStore
	ArtifactDir string
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		workspaces: opts.Workspaces,
		impl:       opts.Builder,
		builder:    NewSnapBuilder(opts.Builder, opts.ArtifactDir, logger),
		logs:       opts.Logs,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Run builds and releases req. Known build and release failures are
// reported to GitHub and return nil; anything else is reported and returned.
func (p *Pipeline) Run(ctx context.Context, req domain.BuildRequest, repo domain.RepoConfig, api ports.StatusAPI) error {
	if repo.Token == "" {
		return &domain.ConfigurationError{Field: repo.Name + "'s token"}
	}
	if repo.Channel == "" {
		return &domain.ConfigurationError{Field: repo.Name + "'s channel"}
	}

	logger := p.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("repo", req.Repository),
		zap.String("sha", req.CommitSHA),
		zap.Int("pr", req.PRNumber),
	)

	buildLog := p.logs.Open(req.Repository, req.CommitSHA)
	defer func() {
		if err := buildLog.Close(); err != nil {
			logger.Warn("failed to close build log", zap.Error(err))
		}
	}()
	status := NewStatusReporter(api, req.Repository, req.CommitSHA, p.logs.URL(req.Repository, req.CommitSHA), logger)

	start := time.Now()
	result, err := p.run(ctx, req, repo, status, buildLog, logger)
	p.metrics.BuildFinished(result, time.Since(start))
	return err
}

func (p *Pipeline) run(ctx context.Context, req domain.BuildRequest, repo domain.RepoConfig, status *StatusReporter, buildLog ports.LogSink, logger *zap.Logger) (string, error) {
	status.Pending(ctx, "Currently building a snap...")

	logger.Info("building snap")
	artifact, err := p.build(ctx, req, buildLog, logger)
	if err != nil {
		if !errors.Is(err, domain.ErrSnapBuilder) {
			return p.unexpected(ctx, err, status, buildLog, logger)
		}
		logger.Error("failed to build snap", zap.Error(err))
		buildLog.WriteLine("builder", "Build failed: "+err.Error())
		status.Error(ctx, "Snap failed to build. Please see logs.")
		return metrics.ResultBuildFailed, nil
	}
	defer func() {
		if err := artifact.Remove(); err != nil {
			logger.Warn("failed to remove artifact", zap.String("path", artifact.Path), zap.Error(err))
		}
	}()

	channel := req.Channel(repo.Channel)
	status.Pending(ctx, fmt.Sprintf("Uploading and releasing snap to '%s'...", channel))
	logger.Info("pushing and releasing snap", zap.String("channel", channel))
	buildLog.WriteLine("builder", fmt.Sprintf("Releasing %s to %s", artifact.Name(), channel))

	if err := p.impl.Release(ctx, artifact, repo.Token, channel, buildLog); err != nil {
		if !errors.Is(err, domain.ErrSnapBuilder) {
			return p.unexpected(ctx, err, status, buildLog, logger)
		}
		err = &domain.ReleaseError{Channel: channel, Err: err}
		logger.Error("failed to push/release snap", zap.Error(err))
		buildLog.WriteLine("builder", err.Error())
		status.Error(ctx, "Snap failed to push/release. Please see logs.")
		return metrics.ResultReleaseFailed, nil
	}

	logger.Info("built and released snap, all done")
	buildLog.WriteLine("builder", "Released to "+channel)
	status.Success(ctx, fmt.Sprintf("Snap built and released to '%s'", channel))
	return metrics.ResultSucceeded, nil
}

// build checks out the commit and builds it. The workspace never outlives
// this call.
func (p *Pipeline) build(ctx context.Context, req domain.BuildRequest, sink ports.LogSink, logger *zap.Logger) (*domain.Artifact, error) {
	sink.WriteLine("builder", fmt.Sprintf("Checking out %s from %s", req.CommitSHA, req.HeadRepoURL))
	ws, err := p.workspaces.Prepare(ctx, req.BaseRepoURL, req.HeadRepoURL, req.CommitSHA, sink)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			logger.Warn("failed to remove workspace", zap.String("dir", ws.Dir), zap.Error(err))
		}
	}()

	return p.builder.Build(ctx, ws.Dir, req.Base, sink)
}

func (p *Pipeline) unexpected(ctx context.Context, err error, status *StatusReporter, buildLog ports.LogSink, logger *zap.Logger) (string, error) {
	logger.Error("encountered unexpected error", zap.Error(err))
	buildLog.WriteLine("builder", "Unexpected error: "+err.Error())
	status.Error(ctx, "Encountered an error: "+err.Error())
	return metrics.ResultUnexpected, err
}
