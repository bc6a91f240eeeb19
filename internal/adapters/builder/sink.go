package builder

import (
	"bytes"
	"sync"

	"github.com/melih/github-snap-builder/internal/core/ports"
)

// lineWriter turns a byte stream into LogSink lines. Safe for concurrent use.
type lineWriter struct {
	mu     sync.Mutex
	sink   ports.LogSink
	stream string
	buf    bytes.Buffer
}

func newLineWriter(sink ports.LogSink, stream string) *lineWriter {
	return &lineWriter{sink: sink, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Partial line; keep it for the next write.
			w.buf.Reset()
			w.buf.Write(line)
			break
		}
		w.emit(line[:len(line)-1])
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line []byte) {
	if w.sink == nil {
		return
	}
	w.sink.WriteLine(w.stream, string(bytes.TrimRight(line, "\r")))
}
