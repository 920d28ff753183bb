package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/pkg/utilities"
)

// Handler exposes read-only HTTP endpoints over the remote directory.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// CountResponse is the body of the count endpoint.
type CountResponse struct {
	Count int `json:"count"`
}

// Count enumerates the remote directory and reports its size.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Count(r.Context())
	if err != nil {
		h.logger.Warnw("count users failed", "err", err)
		utilities.WriteError(w, http.StatusBadGateway, "count users failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, CountResponse{Count: n})
}
