package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/versions"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
)

// MinAPIVersion is the oldest Docker Engine API we drive.
const MinAPIVersion = "1.40"

// Adapter implements ports.ContainerEngine using Docker SDK
type Adapter struct {
	cli    *client.Client
	logger *zap.Logger
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter(logger *zap.Logger) (*Adapter, error) {
	return newAdapter(logger, client.FromEnv, client.WithAPIVersionNegotiation())
}

func newAdapter(logger *zap.Logger, opts ...client.Opt) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, &domain.RuntimeVersionError{Detail: "failed to create docker client", Err: err}
	}
	return &Adapter{cli: cli, logger: logger}, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

func (a *Adapter) CheckVersion(ctx context.Context) error {
	v, err := a.cli.ServerVersion(ctx)
	if err != nil {
		return &domain.RuntimeVersionError{Detail: "cannot reach docker daemon", Err: err}
	}
	if versions.LessThan(v.APIVersion, MinAPIVersion) {
		return &domain.RuntimeVersionError{
			Detail: fmt.Sprintf("docker API %s is older than %s", v.APIVersion, MinAPIVersion),
		}
	}
	a.logger.Debug("docker daemon reachable",
		zap.String("version", v.Version), zap.String("api_version", v.APIVersion))
	return nil
}

func (a *Adapter) InspectImage(ctx context.Context, ref string) (domain.Image, error) {
	info, _, err := a.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return domain.Image{}, fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
		}
		return domain.Image{}, fmt.Errorf("failed to inspect image: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, info.Created)
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to parse creation time of %s: %w", ref, err)
	}
	return domain.Image{ID: info.ID, Ref: ref, Created: created}, nil
}

func (a *Adapter) RemoveImage(ctx context.Context, ref string) error {
	_, err := a.cli.ImageRemove(ctx, ref, types.ImageRemoveOptions{Force: true, PruneChildren: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}

// BuildImage tars contextDir and builds dockerfile from it
func (a *Adapter) BuildImage(ctx context.Context, contextDir, dockerfile, tag string, out io.Writer) (string, error) {
	buildContext, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildContext.Close()

	resp, err := a.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  dockerfile,
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
		PullParent:  true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The body must be drained for the build to finish; build errors only
	// show up inside the stream.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil); err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}

	img, err := a.InspectImage(ctx, tag)
	if err != nil {
		return "", err
	}
	return img.ID, nil
}

func (a *Adapter) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	binds := make([]string, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		binds = append(binds, m.Source+":"+m.Target)
	}

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          spec.Env,
		WorkingDir:   spec.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}, &container.HostConfig{
		Binds:      binds,
		AutoRemove: spec.AutoRemove,
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		a.logger.Warn("container create warning", zap.String("container", resp.ID), zap.String("warning", w))
	}
	return resp.ID, nil
}

func (a *Adapter) CopyFile(ctx context.Context, id, dst string, content []byte) error {
	archived, err := tarFile(path.Base(dst), content)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", dst, err)
	}
	if err := a.cli.CopyToContainer(ctx, id, path.Dir(dst), archived, types.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy file into container: %w", err)
	}
	return nil
}

func (a *Adapter) AttachContainer(ctx context.Context, id string, stdout, stderr io.Writer) (<-chan error, error) {
	resp, err := a.cli.ContainerAttach(ctx, id, types.ContainerAttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container: %w", err)
	}

	return streamOutput(ctx, resp.Reader, resp.Close, stdout, stderr), nil
}

// streamOutput demultiplexes r until it ends. The hijacked connection ignores
// ctx once dialed, so closeFn is called when ctx is done to unblock the copy.
func streamOutput(ctx context.Context, r io.Reader, closeFn func(), stdout, stderr io.Writer) <-chan error {
	done := make(chan error, 1)
	go func() {
		stop := context.AfterFunc(ctx, closeFn)
		defer func() {
			if stop() {
				closeFn()
			}
		}()
		_, err := stdcopy.StdCopy(stdout, stderr, r)
		if err != nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		done <- err
	}()
	return done
}

func (a *Adapter) WaitContainer(ctx context.Context, id string) (<-chan int64, <-chan error) {
	statusCh, errCh := a.cli.ContainerWait(ctx, id, container.WaitConditionNextExit)

	codes := make(chan int64, 1)
	errs := make(chan error, 1)
	go func() {
		select {
		case status := <-statusCh:
			if status.Error != nil {
				errs <- fmt.Errorf("failed to wait for container: %s", status.Error.Message)
				return
			}
			codes <- status.StatusCode
		case err := <-errCh:
			errs <- fmt.Errorf("failed to wait for container: %w", err)
		}
	}()
	return codes, errs
}

func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// RemoveContainer force-deletes a container. AutoRemove may already be
// deleting it, which the daemon reports as a conflict.
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	err := a.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true})
	if err == nil {
		return nil
	}
	if client.IsErrNotFound(err) || errdefs.IsConflict(err) {
		return fmt.Errorf("container %s: %w", id, errors.Join(domain.ErrNotFound, err))
	}
	return fmt.Errorf("failed to remove container: %w", err)
}

// tarFile wraps a single file in a tar stream, as CopyToContainer expects.
func tarFile(name string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
