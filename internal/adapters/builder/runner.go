package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
)

// removeTimeout bounds the final container delete, which runs even after the
// request context is done.
const removeTimeout = 30 * time.Second

// RunOptions describes one containerized command.
type RunOptions struct {
	Image      string
	Command    []string
	Mounts     []domain.Mount
	Env        []string
	WorkingDir string
	// PreStart runs after the container is created and before it starts.
	PreStart func(ctx context.Context, id string) error
}

// ContainerRunner runs a single command in a throwaway container and streams
// its output. The container is always deleted on the way out.
type ContainerRunner struct {
	engine ports.ContainerEngine
	logger *zap.Logger
	// streamTimeout caps how long output is streamed; zero means no limit.
	// The container itself is still waited on.
	streamTimeout time.Duration
}

func NewContainerRunner(engine ports.ContainerEngine, streamTimeout time.Duration, logger *zap.Logger) *ContainerRunner {
	return &ContainerRunner{engine: engine, logger: logger, streamTimeout: streamTimeout}
}

// Run executes opts and returns the exit code. A nonzero code is also
// reported as *domain.ContainerCommandError. Nothing is written to sink
// after Run returns.
func (r *ContainerRunner) Run(ctx context.Context, opts RunOptions, sink ports.LogSink) (int64, error) {
	id, err := r.engine.CreateContainer(ctx, domain.ContainerSpec{
		Image:      opts.Image,
		Command:    opts.Command,
		Env:        opts.Env,
		WorkingDir: opts.WorkingDir,
		Mounts:     opts.Mounts,
		AutoRemove: true,
	})
	if err != nil {
		return -1, err
	}
	logger := r.logger.With(zap.String("container", shortID(id)))

	stdout := newLineWriter(sink, "stdout")
	stderr := newLineWriter(sink, "stderr")

	streamCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.streamTimeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, r.streamTimeout)
	}

	var streamed <-chan error
	// Removing the container ends an attached stream; cancel covers the
	// cases where it does not. The stream is drained before the final flush.
	defer func() {
		r.remove(id, logger)
		cancel()
		if streamed != nil {
			r.drain(streamed, streamCtx, logger)
		}
		stdout.Flush()
		stderr.Flush()
	}()

	if opts.PreStart != nil {
		if err := opts.PreStart(ctx, id); err != nil {
			return -1, fmt.Errorf("failed to prepare container: %w", err)
		}
	}

	attached, err := r.engine.AttachContainer(streamCtx, id, stdout, stderr)
	if err != nil {
		return -1, err
	}
	streamed = attached
	codes, waitErrs := r.engine.WaitContainer(ctx, id)

	logger.Debug("starting container", zap.Strings("command", opts.Command))
	if err := r.engine.StartContainer(ctx, id); err != nil {
		return -1, err
	}

	var code int64
	select {
	case code = <-codes:
	case err := <-waitErrs:
		return -1, err
	}

	// The container exited; let the rest of its output arrive.
	r.drain(streamed, streamCtx, logger)
	streamed = nil

	if code != 0 {
		return code, &domain.ContainerCommandError{Command: opts.Command, ExitCode: code}
	}
	return 0, nil
}

func (r *ContainerRunner) drain(streamed <-chan error, streamCtx context.Context, logger *zap.Logger) {
	err := <-streamed
	switch {
	case err == nil:
	case errors.Is(streamCtx.Err(), context.DeadlineExceeded):
		logger.Warn("stopped streaming container output", zap.Duration("timeout", r.streamTimeout))
	case streamCtx.Err() != nil:
		logger.Debug("output stream closed", zap.Error(err))
	default:
		logger.Warn("container output stream failed", zap.Error(err))
	}
}

func (r *ContainerRunner) remove(id string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	err := r.engine.RemoveContainer(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("container already removed")
	default:
		logger.Warn("failed to remove container", zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
