package builder

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
)

// Host runs snapcraft directly on the build host with --destructive-mode.
// The host's own base is used regardless of what the manifest asks for.
type Host struct {
	snapcraft string
	logger    *zap.Logger
}

// NewHost locates snapcraft. An explicit path skips the PATH lookup.
func NewHost(snapcraft string, logger *zap.Logger) (*Host, error) {
	if snapcraft == "" {
		path, err := exec.LookPath("snapcraft")
		if err != nil {
			return nil, &domain.MissingToolError{Tool: "snapcraft"}
		}
		snapcraft = path
	}
	return &Host{snapcraft: snapcraft, logger: logger}, nil
}

func (h *Host) Build(ctx context.Context, projectDir, base string, sink ports.LogSink) error {
	h.logger.Debug("building on host", zap.String("dir", projectDir), zap.String("base", base))
	return h.run(ctx, projectDir, sink, "--destructive-mode")
}

func (h *Host) Release(ctx context.Context, artifact *domain.Artifact, token, channel string, sink ports.LogSink) error {
	login := exec.CommandContext(ctx, h.snapcraft, "login", "--with", "-")
	login.Stdin = strings.NewReader(token)
	var stderr bytes.Buffer
	login.Stderr = &stderr
	if err := login.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return &domain.AuthenticationError{Detail: detail}
	}

	return h.run(ctx, artifact.Dir(), sink, "push", artifact.Path, "--release", channel)
}

func (h *Host) run(ctx context.Context, dir string, sink ports.LogSink, args ...string) error {
	stdout := newLineWriter(sink, "stdout")
	stderr := newLineWriter(sink, "stderr")
	defer stdout.Flush()
	defer stderr.Flush()

	cmd := exec.CommandContext(ctx, h.snapcraft, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &domain.CommandError{
				Command:  append([]string{"snapcraft"}, args...),
				ExitCode: exitErr.ExitCode(),
			}
		}
		return err
	}
	return nil
}
