// Package logstore keeps one append-only log file per repository and commit.
package logstore

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/ports"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store lays logs out as {root}/{owner}/{repo}/{sha}.log.
type Store struct {
	root    string
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

func NewStore(root, baseURL string, logger *zap.Logger) *Store {
	return &Store{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Root is the directory logs are written under.
func (s *Store) Root() string { return s.root }

// Open returns the log for (repo, sha). Nothing touches the disk until the
// first line is written.
func (s *Store) Open(repo, sha string) ports.BuildLog {
	return &fileLog{path: s.filePath(repo, sha), now: s.now, logger: s.logger}
}

// URL is the public address of the log, or "" without a base URL.
func (s *Store) URL(repo, sha string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/logs/" + relative(repo, sha)
}

// Resolve maps a request path below /logs/ to a file under the root. It
// rejects anything that would escape the root.
func (s *Store) Resolve(name string) (string, bool) {
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" || strings.Contains(name, "\x00") {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	clean := path.Clean("/" + name)
	return filepath.Join(s.root, filepath.FromSlash(clean)), true
}

func (s *Store) filePath(repo, sha string) string {
	return filepath.Join(s.root, filepath.FromSlash(relative(repo, sha)))
}

// relative sanitizes the repository name and commit so neither can add path
// segments of its own.
func relative(repo, sha string) string {
	owner, name, _ := strings.Cut(repo, "/")
	return path.Join(segment(owner), segment(name), segment(sha)+".log")
}

func segment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

type fileLog struct {
	path   string
	now    func() time.Time
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	failed bool
	closed bool
}

func (l *fileLog) WriteLine(stream, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failed || l.closed {
		return
	}
	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			l.fail(err)
			return
		}
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			l.fail(err)
			return
		}
		l.file = f
	}
	if _, err := fmt.Fprintf(l.file, "%s [%s] %s\n", l.now().UTC().Format(timeLayout), stream, line); err != nil {
		l.fail(err)
	}
}

// fail stops further writes; a broken log must not break the build.
func (l *fileLog) fail(err error) {
	l.failed = true
	l.logger.Warn("build log unavailable", zap.String("path", l.path), zap.Error(err))
}

// Close ends the log. Later writes are dropped.
func (l *fileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
