package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
)

// ArtifactGlob matches the packages snapcraft leaves in the project root.
const ArtifactGlob = "*.snap"

// SnapBuilder runs a build implementation over a workspace and extracts the
// one snap it produced.
type SnapBuilder struct {
	impl        ports.BuildImplementation
	artifactDir string
	logger      *zap.Logger
}

// NewSnapBuilder relocates artifacts under artifactDir; empty means the OS
// temp dir.
func NewSnapBuilder(impl ports.BuildImplementation, artifactDir string, logger *zap.Logger) *SnapBuilder {
	return &SnapBuilder{impl: impl, artifactDir: artifactDir, logger: logger}
}

// Build builds the project in dir. base overrides the manifest when set.
// Snaps that already existed in dir are never mistaken for output.
func (b *SnapBuilder) Build(ctx context.Context, dir, base string, sink ports.LogSink) (*domain.Artifact, error) {
	existing, err := findSnaps(dir)
	if err != nil {
		return nil, err
	}

	if base == "" {
		if base, err = ResolveBase(dir); err != nil {
			return nil, err
		}
	}
	b.logger.Info("building snap", zap.String("base", base))
	sink.WriteLine("builder", fmt.Sprintf("Building snap on base %s", base))

	if err := b.impl.Build(ctx, dir, base, sink); err != nil {
		return nil, err
	}

	built, err := findSnaps(dir)
	if err != nil {
		return nil, err
	}
	created := newSnaps(existing, built)
	switch len(created) {
	case 0:
		return nil, &domain.BuildFailedError{}
	case 1:
	default:
		return nil, &domain.TooManyArtifactsError{Paths: created}
	}

	// The workspace is about to be deleted, so move the snap out of it.
	artifact, err := domain.RelocateArtifact(created[0], b.artifactDir, base)
	if err != nil {
		return nil, err
	}
	sink.WriteLine("builder", "Built "+artifact.Name())
	return artifact, nil
}

func findSnaps(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, ArtifactGlob))
	if err != nil {
		return nil, fmt.Errorf("failed to list snaps: %w", err)
	}
	return matches, nil
}

func newSnaps(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, p := range before {
		seen[p] = true
	}
	var created []string
	for _, p := range after {
		if !seen[p] {
			created = append(created, p)
		}
	}
	sort.Strings(created)
	return created
}
