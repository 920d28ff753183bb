package rule

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/rule/entity"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/pkg/utilities"
)

type Handler struct {
	svc      *Service
	declared map[string]entity.DesiredRule
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, declared map[string]entity.DesiredRule, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, declared: declared, logger: logger}
}

// Plan reports what reconciling the declared rules would do. It never mutates.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Plan(r.Context(), h.declared)
	if err != nil {
		h.logger.Warnw("rule plan failed", "err", err)
		utilities.WriteError(w, http.StatusBadGateway, "rule plan failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, plan)
}
