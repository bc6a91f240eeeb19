package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
)

const fakeSnapcraft = `#!/bin/sh
case "$1" in
  --destructive-mode)
    echo "building"
    touch built.snap
    ;;
  login)
    read token
    if [ "$token" != "good-token" ]; then
      echo "invalid credentials" >&2
      exit 1
    fi
    ;;
  push)
    if [ "$4" = "broken" ]; then
      echo "store said no" >&2
      exit 3
    fi
    echo "pushed $(basename "$2") to $4"
    ;;
esac
`

func writeFakeSnapcraft(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapcraft")
	require.NoError(t, os.WriteFile(path, []byte(fakeSnapcraft), 0o755))
	return path
}

func TestNewHost_MissingSnapcraft(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := NewHost("", zap.NewNop())
	var missing *domain.MissingToolError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "snapcraft", missing.Tool)
}

func TestHost_Build(t *testing.T) {
	host, err := NewHost(writeFakeSnapcraft(t), zap.NewNop())
	require.NoError(t, err)
	project := t.TempDir()
	sink := &recordingSink{}

	require.NoError(t, host.Build(context.Background(), project, "core18", sink))
	assert.FileExists(t, filepath.Join(project, "built.snap"))
	assert.Equal(t, []string{"stdout: building"}, sink.Lines())
}

func TestHost_Release(t *testing.T) {
	host, err := NewHost(writeFakeSnapcraft(t), zap.NewNop())
	require.NoError(t, err)

	t.Run("pushes after login", func(t *testing.T) {
		sink := &recordingSink{}
		err := host.Release(context.Background(), newTestArtifact(t, "test.snap"), "good-token", "edge/pr-1", sink)
		require.NoError(t, err)
		assert.Equal(t, []string{"stdout: pushed test.snap to edge/pr-1"}, sink.Lines())
	})

	t.Run("login failure", func(t *testing.T) {
		err := host.Release(context.Background(), newTestArtifact(t, "test.snap"), "bad-token", "edge", nil)
		var authErr *domain.AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "invalid credentials", authErr.Detail)
	})

	t.Run("push failure", func(t *testing.T) {
		err := host.Release(context.Background(), newTestArtifact(t, "test.snap"), "good-token", "broken", nil)
		var cmdErr *domain.CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, 3, cmdErr.ExitCode)
	})
}
