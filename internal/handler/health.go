package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cradoe/songbid/internal/errHandler"
	"github.com/cradoe/songbid/internal/response"
	"github.com/cradoe/songbid/internal/version"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthCheckHandler struct {
	ErrHandler *errHandler.ErrorRepository
	Cache      Pinger
}

func NewHealthCheckHandler(handler *HealthCheckHandler) *HealthCheckHandler {
	return &HealthCheckHandler{
		ErrHandler: handler.ErrHandler,
		Cache:      handler.Cache,
	}
}

func (h *HealthCheckHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	message := "Up and grateful"

	err := response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleStatus reports the build and whether the lock store is reachable.
// The reconciler cannot run without it, but the API can.
func (h *HealthCheckHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	cacheStatus := "up"
	if h.Cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		if err := h.Cache.Ping(ctx); err != nil {
			cacheStatus = "down"
		}
	}

	data := map[string]any{
		"Status":  "available",
		"Version": version.Get(),
		"Cache":   cacheStatus,
	}

	err := response.JSONOkResponse(w, data, "", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
