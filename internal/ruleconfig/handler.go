package ruleconfig

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/pkg/utilities"
)

// Handler contains dependencies for handling rule-config endpoints.
type Handler struct {
	svc      *Service
	declared map[string]any
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, declared map[string]any, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, declared: declared, logger: logger}
}

// Plan reports which declared keys are new and which would be reset.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Plan(r.Context(), h.declared)
	if err != nil {
		h.logger.Warnw("rule config plan failed", "err", err)
		utilities.WriteError(w, http.StatusBadGateway, "rule config plan failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, plan)
}
