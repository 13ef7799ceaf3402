package helper

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
)

type HelperRepository struct {
	baseUrl string
	WG      *sync.WaitGroup
	logger  *slog.Logger
}

func New(baseUrl string, wg *sync.WaitGroup, logger *slog.Logger) *HelperRepository {
	return &HelperRepository{
		baseUrl: baseUrl,
		WG:      wg,
		logger:  logger,
	}
}

func (h *HelperRepository) NewEmailData() map[string]any {
	data := map[string]any{
		"BaseURL": h.baseUrl,
	}

	return data
}

// BackgroundTask runs fn on its own goroutine. Shutdown waits on WG, so tasks
// started before it are allowed to finish. r is optional and only used to
// label the log line.
func (h *HelperRepository) BackgroundTask(r *http.Request, fn func() error) {
	h.WG.Add(1)

	go func() {
		defer h.WG.Done()

		defer func() {
			if err := recover(); err != nil {
				h.report(r, fmt.Errorf("%s", err), string(debug.Stack()))
			}
		}()

		if err := fn(); err != nil {
			h.report(r, err, "")
		}
	}()
}

func (h *HelperRepository) report(r *http.Request, err error, trace string) {
	attrs := []any{"error", err}
	if r != nil {
		attrs = append(attrs, slog.Group("request", "method", r.Method, "url", r.URL.String()))
	}
	if trace != "" {
		attrs = append(attrs, "trace", trace)
	}

	h.logger.Error("background task failed", attrs...)
}
