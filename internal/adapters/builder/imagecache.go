package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
	"github.com/melih/github-snap-builder/internal/metrics"
)

const (
	// ImageRepository is the local repository build images are tagged into.
	ImageRepository = "github-snap-builder"
	// MaxImageAge bounds how long a build image is reused. The image bundles
	// snapcraft, which is refreshed upstream.
	MaxImageAge = 24 * time.Hour
)

// ImageRef is the tag used for a base's build image.
func ImageRef(base string) string {
	return ImageRepository + ":" + base
}

// DockerfileName is the recipe for base inside the recipe directory.
func DockerfileName(base string) string {
	return "Dockerfile." + base
}

// ImageCache resolves the build image for a base, rebuilding it when absent
// or older than MaxImageAge. Concurrent misses for one base may both build;
// the last tag wins.
type ImageCache struct {
	engine    ports.ContainerEngine
	recipeDir string
	maxAge    time.Duration
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewImageCache(engine ports.ContainerEngine, recipeDir string, logger *zap.Logger, m *metrics.Metrics) *ImageCache {
	return &ImageCache{
		engine:    engine,
		recipeDir: recipeDir,
		maxAge:    MaxImageAge,
		now:       time.Now,
		logger:    logger,
		metrics:   m,
	}
}

// Resolve returns the image ref to run for base.
func (c *ImageCache) Resolve(ctx context.Context, base string, sink ports.LogSink) (string, error) {
	ref := ImageRef(base)
	logger := c.logger.With(zap.String("image", ref))

	img, err := c.engine.InspectImage(ctx, ref)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.metrics.ImageLookup(metrics.CacheMiss)
		logger.Info("no cached build image")
	case err != nil:
		return "", err
	case img.Age(c.now()) < c.maxAge:
		c.metrics.ImageLookup(metrics.CacheHit)
		logger.Debug("using cached build image", zap.Time("created", img.Created))
		return ref, nil
	default:
		c.metrics.ImageLookup(metrics.CacheStale)
		logger.Info("build image is stale, removing", zap.Time("created", img.Created))
		if err := c.engine.RemoveImage(ctx, ref); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}

	return ref, c.build(ctx, base, ref, sink)
}

func (c *ImageCache) build(ctx context.Context, base, ref string, sink ports.LogSink) error {
	dockerfile := DockerfileName(base)
	if _, err := os.Stat(filepath.Join(c.recipeDir, dockerfile)); err != nil {
		return &domain.UnsupportedBaseError{Base: base}
	}

	if sink != nil {
		sink.WriteLine("builder", fmt.Sprintf("Building image %s from %s", ref, dockerfile))
	}
	out := newLineWriter(sink, "stdout")
	defer out.Flush()

	id, err := c.engine.BuildImage(ctx, c.recipeDir, dockerfile, ref, out)
	if err != nil {
		return err
	}
	c.logger.Info("built build image", zap.String("image", ref), zap.String("id", id))
	return nil
}
