package claims

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/pkg/utilities"
)

type Handler struct {
	reader *Reader
	logger *zap.SugaredLogger
}

func NewHandler(reader *Reader, logger *zap.SugaredLogger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

// Profile resolves the metadata carried by the bearer id_token. The token is
// decoded, not verified.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		utilities.WriteError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	token := strings.TrimSpace(auth[len("bearer "):])
	p, err := h.reader.ProfileFromIDToken(token)
	if err != nil {
		h.logger.Debugw("invalid id_token", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid_token")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, p)
}
