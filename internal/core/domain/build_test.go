package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest_Channel(t *testing.T) {
	req := BuildRequest{PRNumber: 42}
	assert.Equal(t, "edge/pr-42", req.Channel("edge"))
	assert.Equal(t, "beta/pr-42", req.Channel("beta"))
}

func TestRepoConfig_Split(t *testing.T) {
	owner, name := RepoConfig{Name: "canonical/snapcraft"}.Split()
	assert.Equal(t, "canonical", owner)
	assert.Equal(t, "snapcraft", name)
}

func TestRelocateArtifact(t *testing.T) {
	workspace := t.TempDir()
	src := filepath.Join(workspace, "hello_1.0_amd64.snap")
	require.NoError(t, os.WriteFile(src, []byte("squashfs"), 0o644))
	root := t.TempDir()

	artifact, err := RelocateArtifact(src, root, "core18")
	require.NoError(t, err)

	assert.NoFileExists(t, src)
	assert.FileExists(t, artifact.Path)
	assert.Equal(t, "hello_1.0_amd64.snap", artifact.Name())
	assert.Equal(t, root, filepath.Dir(artifact.Dir()))
	content, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "squashfs", string(content))

	require.NoError(t, artifact.Remove())
	assert.NoDirExists(t, artifact.Dir())
	assert.NoError(t, artifact.Remove(), "second remove is a no-op")
}

func TestRelocateArtifact_Missing(t *testing.T) {
	_, err := RelocateArtifact(filepath.Join(t.TempDir(), "nope.snap"), t.TempDir(), "core18")
	var missing *MissingArtifactError
	assert.ErrorAs(t, err, &missing)
}

func TestNewArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.snap")

	_, err := NewArtifact(path, "core18")
	assert.EqualError(t, err, "unable to find snap with path '"+path+"'")

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	artifact, err := NewArtifact(path, "core18")
	require.NoError(t, err)

	require.NoError(t, artifact.Remove())
	assert.NoFileExists(t, path)
	assert.DirExists(t, dir, "only the file is removed")
}

func TestWorkspace_Remove(t *testing.T) {
	dir := t.TempDir()
	ws := &Workspace{Dir: filepath.Join(dir, "ws")}
	require.NoError(t, os.Mkdir(ws.Dir, 0o755))

	require.NoError(t, ws.Remove())
	assert.NoDirExists(t, ws.Dir)
	assert.NoError(t, ws.Remove())

	var nilWS *Workspace
	assert.NoError(t, nilWS.Remove())
}

func TestErrorsMatchSnapBuilder(t *testing.T) {
	errs := []error{
		&MissingToolError{Tool: "snapcraft"},
		&ManifestNotFoundError{Dir: "/tmp"},
		&BuildFailedError{},
		&TooManyArtifactsError{Paths: []string{"a.snap", "b.snap"}},
		&ContainerCommandError{Command: []string{"snapcraft"}, ExitCode: 1},
		&RuntimeVersionError{Detail: "old"},
		&AuthenticationError{Detail: "bad"},
		&ConfigurationError{Field: "port"},
		&SignatureMismatchError{Reason: "digest"},
		&WorkspaceError{Step: "clone", Err: errors.New("x")},
		&UnsupportedBaseError{Base: "core99"},
	}
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSnapBuilder, err.Error())
	}
	assert.NotErrorIs(t, errors.New("other"), ErrSnapBuilder)
}

func TestTooManyArtifactsError(t *testing.T) {
	err := &TooManyArtifactsError{Paths: []string{"a.snap", "b.snap"}}
	assert.Equal(t, "expected to find a single snap, found 2: a.snap, b.snap", err.Error())
}
