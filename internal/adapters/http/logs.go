package http

import (
	"os"

	"github.com/gofiber/fiber/v2"
)

// LogResolver maps a request path to a log file on disk.
type LogResolver interface {
	Resolve(name string) (string, bool)
}

type LogHandler struct {
	logs LogResolver
}

func NewLogHandler(logs LogResolver) *LogHandler {
	return &LogHandler{logs: logs}
}

// GetLog serves GET /logs/*. Anything outside the log root is a 404.
func (h *LogHandler) GetLog(c *fiber.Ctx) error {
	path, ok := h.logs.Resolve(c.Params("*"))
	if !ok {
		return fiber.ErrNotFound
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fiber.ErrNotFound
	}

	f, err := os.Open(path)
	if err != nil {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.SendStream(f, int(info.Size()))
}
