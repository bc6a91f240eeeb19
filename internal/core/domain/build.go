package domain

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BuildRequest is one accepted pull request delivery. Treat it as immutable.
type BuildRequest struct {
	Repository  string // base repository full name, e.g. "owner/name"
	BaseRepoURL string
	HeadRepoURL string
	CommitSHA   string
	PRNumber    int
	BuildType   string
	// Base forces the build base and bypasses the manifest. Normally empty.
	Base string
}

// Channel returns the PR-scoped release track under the configured channel.
func (r BuildRequest) Channel(configured string) string {
	return fmt.Sprintf("%s/pr-%d", configured, r.PRNumber)
}

// RepoConfig holds per-repository settings.
type RepoConfig struct {
	Name    string
	Channel string
	Token   string
	Base    string
}

// Split returns the repository owner and name.
func (c RepoConfig) Split() (owner, name string) {
	owner, name, _ = strings.Cut(c.Name, "/")
	return owner, name
}

// Workspace is a checked out source tree owned by one pipeline run.
type Workspace struct {
	Dir string
}

// Remove deletes the workspace. A missing directory is not an error.
func (w *Workspace) Remove() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

// Artifact is the single package produced by a build. The owning run must call
// Remove on every exit path; repeated calls are no-ops.
type Artifact struct {
	Path string
	// Base is the build base the artifact was produced against.
	Base string

	dir  string // private directory created for the artifact, if any
	once sync.Once
	err  error
}

// NewArtifact wraps an existing file. Remove deletes only that file.
func NewArtifact(path, base string) (*Artifact, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &MissingArtifactError{Path: path}
	}
	return &Artifact{Path: path, Base: base}, nil
}

// RelocateArtifact moves src into a fresh private directory under root so it
// outlives the workspace it was built in. The file keeps its name.
func RelocateArtifact(src, root, base string) (*Artifact, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, &MissingArtifactError{Path: src}
	}
	dir, err := os.MkdirTemp(root, "snap-")
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := moveFile(src, dst); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to relocate %s: %w", src, err)
	}
	return &Artifact{Path: dst, Base: base, dir: dir}, nil
}

// Name is the artifact's file name.
func (a *Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Dir is the directory holding the artifact.
func (a *Artifact) Dir() string {
	return filepath.Dir(a.Path)
}

// Remove deletes the artifact (and its private directory). A file that is
// already gone is not an error.
func (a *Artifact) Remove() error {
	a.once.Do(func() {
		var err error
		if a.dir != "" {
			err = os.RemoveAll(a.dir)
		} else {
			err = os.Remove(a.Path)
		}
		if err != nil && !os.IsNotExist(err) {
			a.err = err
		}
	})
	return a.err
}

// moveFile renames src to dst, falling back to copy+delete across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
