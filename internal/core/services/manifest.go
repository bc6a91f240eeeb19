package services

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/melih/github-snap-builder/internal/core/domain"
)

const (
	// LegacyBase is what a manifest without a base key builds on.
	LegacyBase = "core"
	// DefaultBase is the current name for LegacyBase.
	DefaultBase = "core16"
)

// manifestPaths are searched in order; the first hit wins.
var manifestPaths = []string{
	"snapcraft.yaml",
	".snapcraft.yaml",
	filepath.Join("snap", "snapcraft.yaml"),
}

type manifest struct {
	Base      string `yaml:"base"`
	BuildBase string `yaml:"build-base"`
}

// FindManifest returns the path of the project's snapcraft.yaml.
func FindManifest(dir string) (string, error) {
	for _, rel := range manifestPaths {
		path := filepath.Join(dir, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", &domain.ManifestNotFoundError{Dir: dir}
}

// ResolveBase reads the build base declared by the project in dir.
func ResolveBase(dir string) (string, error) {
	path, err := FindManifest(dir)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &domain.ManifestError{Path: path, Err: err}
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return "", &domain.ManifestError{Path: path, Err: err}
	}

	base := m.Base
	// Bare snaps name the base they build on separately.
	if base == "bare" && m.BuildBase != "" {
		base = m.BuildBase
	}
	if base == "" {
		base = LegacyBase
	}
	return NormalizeBase(base), nil
}

// NormalizeBase maps legacy base names onto their current equivalent.
func NormalizeBase(base string) string {
	if base == LegacyBase {
		return DefaultBase
	}
	return base
}
