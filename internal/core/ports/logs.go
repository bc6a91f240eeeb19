package ports

// LogSink receives build output one line at a time. stream is "stdout",
// "stderr" or "builder" for messages from this service.
type LogSink interface {
	WriteLine(stream, line string)
}

// BuildLog is the sink for one (repository, commit).
type BuildLog interface {
	LogSink
	Close() error
}

// LogStore opens build logs and resolves their public URLs.
type LogStore interface {
	Open(repo, sha string) BuildLog
	URL(repo, sha string) string
}
