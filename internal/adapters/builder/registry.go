// Package builder holds the snapcraft build implementations and the
// registry used to select one by name from configuration.
package builder

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
	"github.com/melih/github-snap-builder/internal/metrics"
)

// Build type identifiers.
const (
	TypeDocker = "docker"
	TypeHost   = "host"
)

// Deps carries whatever a build implementation may need.
type Deps struct {
	// NewEngine is only called by implementations that need a container runtime.
	NewEngine     func() (ports.ContainerEngine, error)
	RecipeDir     string
	StreamTimeout time.Duration
	Snapcraft     string // host snapcraft path; empty means look it up
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Factory constructs one build implementation.
type Factory func(ctx context.Context, deps Deps) (ports.BuildImplementation, error)

var registry = map[string]Factory{
	TypeDocker: func(ctx context.Context, deps Deps) (ports.BuildImplementation, error) {
		if deps.NewEngine == nil {
			return nil, &domain.RuntimeVersionError{Detail: "no container engine configured"}
		}
		engine, err := deps.NewEngine()
		if err != nil {
			return nil, err
		}
		d, err := NewDocker(ctx, engine, DockerOptions{
			RecipeDir:     deps.RecipeDir,
			StreamTimeout: deps.StreamTimeout,
		}, deps.Logger.Named("docker"), deps.Metrics)
		if err != nil {
			return nil, err
		}
		return d, nil
	},
	TypeHost: func(ctx context.Context, deps Deps) (ports.BuildImplementation, error) {
		h, err := NewHost(deps.Snapcraft, deps.Logger.Named("host"))
		if err != nil {
			return nil, err
		}
		return h, nil
	},
}

// SupportedBuildTypes lists the registered identifiers, sorted.
func SupportedBuildTypes() []string {
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// IsSupported reports whether name is a registered build type.
func IsSupported(name string) bool {
	_, ok := registry[name]
	return ok
}

// New builds the implementation registered under name.
func New(ctx context.Context, name string, deps Deps) (ports.BuildImplementation, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, &domain.ConfigurationError{Field: "build_type", Reason: "unsupported build type " + name}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return factory(ctx, deps)
}
