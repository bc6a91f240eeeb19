package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSnapBuilder matches every error in this file via errors.Is. The pipeline
// treats anything else as unexpected.
var ErrSnapBuilder = errors.New("snap builder error")

// ErrNotFound is returned by runtime adapters for images or containers that
// do not exist (or are already being removed).
var ErrNotFound = errors.New("not found")

type MissingToolError struct {
	Tool string
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("%s must be installed and in the PATH", e.Tool)
}

func (e *MissingToolError) Is(target error) bool { return target == ErrSnapBuilder }

type ManifestNotFoundError struct {
	Dir string
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("no snapcraft.yaml found in %s", e.Dir)
}

func (e *ManifestNotFoundError) Is(target error) bool { return target == ErrSnapBuilder }

type MissingArtifactError struct {
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("unable to find snap with path '%s'", e.Path)
}

func (e *MissingArtifactError) Is(target error) bool { return target == ErrSnapBuilder }

// BuildFailedError means the build ran but produced no new snap.
type BuildFailedError struct{}

func (e *BuildFailedError) Error() string { return "build failed" }

func (e *BuildFailedError) Is(target error) bool { return target == ErrSnapBuilder }

type TooManyArtifactsError struct {
	Paths []string
}

func (e *TooManyArtifactsError) Error() string {
	return fmt.Sprintf("expected to find a single snap, found %d: %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

func (e *TooManyArtifactsError) Is(target error) bool { return target == ErrSnapBuilder }

// ContainerCommandError is a command that exited nonzero inside a container.
type ContainerCommandError struct {
	Command  []string
	ExitCode int64
}

func (e *ContainerCommandError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", strings.Join(e.Command, " "), e.ExitCode)
}

func (e *ContainerCommandError) Is(target error) bool { return target == ErrSnapBuilder }

// CommandError is a command that exited nonzero on the build host.
type CommandError struct {
	Command  []string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", strings.Join(e.Command, " "), e.ExitCode)
}

func (e *CommandError) Is(target error) bool { return target == ErrSnapBuilder }

// RuntimeVersionError means the container runtime is unreachable or too old.
type RuntimeVersionError struct {
	Detail string
	Err    error
}

func (e *RuntimeVersionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("container runtime unavailable: %s: %v", e.Detail, e.Err)
	}
	return "container runtime unavailable: " + e.Detail
}

func (e *RuntimeVersionError) Unwrap() error { return e.Err }

func (e *RuntimeVersionError) Is(target error) bool { return target == ErrSnapBuilder }

type AuthenticationError struct {
	Detail string
}

func (e *AuthenticationError) Error() string {
	return "failed to authenticate: " + e.Detail
}

func (e *AuthenticationError) Is(target error) bool { return target == ErrSnapBuilder }

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration field is invalid: '%s': %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration field is invalid: '%s'", e.Field)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrSnapBuilder }

// SignatureMismatchError is an inbound webhook whose HMAC does not verify.
type SignatureMismatchError struct {
	Reason string
}

func (e *SignatureMismatchError) Error() string {
	return "webhook signature mismatch: " + e.Reason
}

func (e *SignatureMismatchError) Is(target error) bool { return target == ErrSnapBuilder }

// WorkspaceError is a failed clone, remote-add, fetch or checkout.
type WorkspaceError struct {
	Step string
	Err  error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Step, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

func (e *WorkspaceError) Is(target error) bool { return target == ErrSnapBuilder }

// ReleaseError wraps any failure while pushing or releasing a snap.
type ReleaseError struct {
	Channel string
	Err     error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("failed to push/release snap to '%s': %v", e.Channel, e.Err)
}

func (e *ReleaseError) Unwrap() error { return e.Err }

func (e *ReleaseError) Is(target error) bool { return target == ErrSnapBuilder }

// UnsupportedBaseError is a build base with no image recipe.
type UnsupportedBaseError struct {
	Base string
}

func (e *UnsupportedBaseError) Error() string {
	return fmt.Sprintf("no build image recipe for base '%s'", e.Base)
}

func (e *UnsupportedBaseError) Is(target error) bool { return target == ErrSnapBuilder }

// ManifestError is a snapcraft.yaml that could not be read or parsed.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

func (e *ManifestError) Is(target error) bool { return target == ErrSnapBuilder }
