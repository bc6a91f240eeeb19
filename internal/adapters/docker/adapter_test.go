package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
)

// newStubDaemon points an Adapter at an HTTP server speaking the Engine API.
func newStubDaemon(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := newAdapter(zap.NewNop(),
		client.WithHost("tcp://"+srv.Listener.Addr().String()),
		client.WithHTTPClient(srv.Client()),
		client.WithVersion("1.43"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func daemonError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func TestAdapter_InspectImage(t *testing.T) {
	a := newStubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1.43/images/snap-core18/json":
			writeJSON(w, http.StatusOK, map[string]string{
				"Id":      "sha256:abc",
				"Created": "2020-06-13T10:00:00.123456789Z",
			})
		default:
			daemonError(w, http.StatusNotFound, "No such image")
		}
	})
	ctx := context.Background()

	img, err := a.InspectImage(ctx, "snap-core18")
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", img.ID)
	assert.Equal(t, "snap-core18", img.Ref)
	assert.True(t, img.Created.Equal(time.Date(2020, 6, 13, 10, 0, 0, 123456789, time.UTC)), img.Created)

	_, err = a.InspectImage(ctx, "snap-core20")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdapter_InspectImage_BadCreated(t *testing.T) {
	a := newStubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"Id": "sha256:abc", "Created": "yesterday"})
	})

	_, err := a.InspectImage(context.Background(), "snap-core18")
	assert.ErrorContains(t, err, "failed to parse creation time")
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestAdapter_CheckVersion(t *testing.T) {
	tests := []struct {
		name       string
		apiVersion string
		wantErr    bool
	}{
		{name: "current daemon", apiVersion: "1.43"},
		{name: "minimum daemon", apiVersion: MinAPIVersion},
		{name: "old daemon", apiVersion: "1.39", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newStubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1.43/version", r.URL.Path)
				writeJSON(w, http.StatusOK, map[string]string{"Version": "24.0.7", "ApiVersion": tt.apiVersion})
			})

			err := a.CheckVersion(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var versionErr *domain.RuntimeVersionError
			require.ErrorAs(t, err, &versionErr)
			assert.Contains(t, versionErr.Detail, tt.apiVersion)
		})
	}
}

func TestAdapter_RemoveContainer(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantErr      bool
		wantNotFound bool
	}{
		{name: "removed", status: http.StatusNoContent},
		{name: "already gone", status: http.StatusNotFound, wantErr: true, wantNotFound: true},
		{name: "removal in progress", status: http.StatusConflict, wantErr: true, wantNotFound: true},
		{name: "daemon failure", status: http.StatusInternalServerError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newStubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/v1.43/containers/c1", r.URL.Path)
				assert.Equal(t, "1", r.URL.Query().Get("force"))
				if tt.status == http.StatusNoContent {
					w.WriteHeader(tt.status)
					return
				}
				daemonError(w, tt.status, http.StatusText(tt.status))
			})

			err := a.RemoveContainer(context.Background(), "c1")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantNotFound, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestAdapter_WaitContainer(t *testing.T) {
	t.Run("exit code", func(t *testing.T) {
		a := newStubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1.43/containers/c1/wait", r.URL.Path)
			assert.Equal(t, "next-exit", r.URL.Query().Get("condition"))
			writeJSON(w, http.StatusOK, map[string]any{"StatusCode": 3})
		})

		codes, errs := a.WaitContainer(context.Background(), "c1")
		select {
		case code := <-codes:
			assert.Equal(t, int64(3), code)
		case err := <-errs:
			t.Fatalf("unexpected wait error: %v", err)
		}
	})

	t.Run("wait error in status", func(t *testing.T) {
		a := newStubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"StatusCode": 0,
				"Error":      map[string]string{"Message": "container vanished"},
			})
		})

		codes, errs := a.WaitContainer(context.Background(), "c1")
		select {
		case code := <-codes:
			t.Fatalf("unexpected exit code %d", code)
		case err := <-errs:
			assert.EqualError(t, err, "failed to wait for container: container vanished")
		}
	})

	t.Run("daemon error", func(t *testing.T) {
		a := newStubDaemon(t, func(w http.ResponseWriter, r *http.Request) {
			daemonError(w, http.StatusNotFound, "No such container: c1")
		})

		_, errs := a.WaitContainer(context.Background(), "c1")
		err := <-errs
		assert.ErrorContains(t, err, "No such container")
	})
}

func TestStreamOutput(t *testing.T) {
	t.Run("demultiplexes until the stream ends", func(t *testing.T) {
		var raw bytes.Buffer
		stdcopy.NewStdWriter(&raw, stdcopy.Stdout).Write([]byte("Pulling parts\n"))
		stdcopy.NewStdWriter(&raw, stdcopy.Stderr).Write([]byte("warning\n"))

		var closes atomic.Int32
		var stdout, stderr bytes.Buffer
		done := streamOutput(context.Background(), &raw, func() { closes.Add(1) }, &stdout, &stderr)

		require.NoError(t, <-done)
		assert.Equal(t, "Pulling parts\n", stdout.String())
		assert.Equal(t, "warning\n", stderr.String())
		assert.Equal(t, int32(1), closes.Load())
	})

	t.Run("context end closes a stalled stream", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer pw.Close()
		var closes atomic.Int32
		closeFn := func() {
			closes.Add(1)
			pr.Close()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var stdout, stderr bytes.Buffer
		done := streamOutput(ctx, pr, closeFn, &stdout, &stderr)

		// The frame is consumed before the write returns; the stream then stalls.
		_, err := stdcopy.NewStdWriter(pw, stdcopy.Stdout).Write([]byte("first line\n"))
		require.NoError(t, err)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not stop after the context ended")
		}
		assert.Equal(t, "first line\n", stdout.String())
		assert.Empty(t, stderr.String())
		assert.Equal(t, int32(1), closes.Load())
	})
}

func TestTarFile(t *testing.T) {
	r, err := tarFile("token", []byte("s3cret"))
	require.NoError(t, err)

	tr := tar.NewReader(r)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "token", hdr.Name)
	assert.Equal(t, int64(0o600), hdr.Mode)

	body, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(body))

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}
