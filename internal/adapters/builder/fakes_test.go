package builder

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/melih/github-snap-builder/internal/core/domain"
)

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) WriteLine(stream, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, stream+": "+line)
}

func (s *recordingSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type imageBuild struct {
	contextDir string
	dockerfile string
	tag        string
}

// fakeEngine is an in-memory ContainerEngine. Start "runs" the most
// recently created container: it calls onStart, writes output and exits
// with exitCode.
type fakeEngine struct {
	mu sync.Mutex

	versionErr error
	now        time.Time
	images     map[string]domain.Image
	inspectErr error
	buildErr   error
	builds     []imageBuild
	removedImg []string

	calls     []string
	created   []domain.ContainerSpec
	copied    map[string][]byte
	removed   []string
	createErr error
	startErr  error
	waitErr   error
	removeErr error
	exitCode  int64
	output    string
	onStart   func(spec domain.ContainerSpec)
	// lateOutput is written once the container has been removed.
	lateOutput string
	// hangStream keeps the output stream open until its context ends.
	hangStream bool

	removedCh  chan struct{}
	stdout     io.Writer
	streamDone chan error
	codes      chan int64
	waitErrs   chan error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		now:    time.Now(),
		images: map[string]domain.Image{},
		copied: map[string][]byte{},

		removedCh: make(chan struct{}),
	}
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) CheckVersion(ctx context.Context) error {
	return f.versionErr
}

func (f *fakeEngine) InspectImage(ctx context.Context, ref string) (domain.Image, error) {
	f.record("inspect " + ref)
	if f.inspectErr != nil {
		return domain.Image{}, f.inspectErr
	}
	img, ok := f.images[ref]
	if !ok {
		return domain.Image{}, fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
	}
	return img, nil
}

func (f *fakeEngine) RemoveImage(ctx context.Context, ref string) error {
	f.record("rmi " + ref)
	f.removedImg = append(f.removedImg, ref)
	delete(f.images, ref)
	return nil
}

func (f *fakeEngine) BuildImage(ctx context.Context, contextDir, dockerfile, tag string, out io.Writer) (string, error) {
	f.record("build " + tag)
	if f.buildErr != nil {
		return "", f.buildErr
	}
	f.builds = append(f.builds, imageBuild{contextDir: contextDir, dockerfile: dockerfile, tag: tag})
	io.WriteString(out, "Step 1/2 : FROM ubuntu\nSuccessfully tagged "+tag+"\n")
	f.images[tag] = domain.Image{ID: "sha256:" + strings.Repeat("a", 12), Ref: tag, Created: f.now}
	return f.images[tag].ID, nil
}

func (f *fakeEngine) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	f.record("create")
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	f.created = append(f.created, spec)
	id := fmt.Sprintf("container-%d", len(f.created))
	f.mu.Unlock()
	return id, nil
}

func (f *fakeEngine) CopyFile(ctx context.Context, id, path string, content []byte) error {
	f.record("copy " + path)
	f.copied[path] = content
	return nil
}

func (f *fakeEngine) AttachContainer(ctx context.Context, id string, stdout, stderr io.Writer) (<-chan error, error) {
	f.record("attach")
	f.stdout = stdout
	f.streamDone = make(chan error, 1)
	if f.hangStream {
		go func() {
			<-ctx.Done()
			f.streamDone <- ctx.Err()
		}()
	}
	return f.streamDone, nil
}

func (f *fakeEngine) WaitContainer(ctx context.Context, id string) (<-chan int64, <-chan error) {
	f.record("wait")
	f.codes = make(chan int64, 1)
	f.waitErrs = make(chan error, 1)
	return f.codes, f.waitErrs
}

func (f *fakeEngine) StartContainer(ctx context.Context, id string) error {
	f.record("start")
	if f.startErr != nil {
		f.streamDone <- nil
		return f.startErr
	}
	if f.onStart != nil {
		f.onStart(f.created[len(f.created)-1])
	}
	io.WriteString(f.stdout, f.output)
	switch {
	case f.hangStream:
	case f.lateOutput != "":
		go func() {
			<-f.removedCh
			io.WriteString(f.stdout, f.lateOutput)
			f.streamDone <- nil
		}()
	default:
		f.streamDone <- nil
	}
	if f.waitErr != nil {
		f.waitErrs <- f.waitErr
	} else {
		f.codes <- f.exitCode
	}
	return nil
}

func (f *fakeEngine) RemoveContainer(ctx context.Context, id string) error {
	f.record("remove")
	f.mu.Lock()
	f.removed = append(f.removed, id)
	if f.removedCh != nil && len(f.removed) == 1 {
		close(f.removedCh)
	}
	f.mu.Unlock()
	return f.removeErr
}
