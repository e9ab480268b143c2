package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AuthStore is the slice of the credential store the cleanup job needs.
type AuthStore interface {
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

// CleanupHandler is a cron-secret-guarded endpoint that drops lapsed account
// locks. Hidden entirely when no secret is configured.
type CleanupHandler struct {
	store      AuthStore
	logger     *zap.Logger
	cronSecret string
}

func NewCleanupHandler(store AuthStore, logger *zap.Logger, cronSecret string) *CleanupHandler {
	return &CleanupHandler{
		store:      store,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.store.ClearExpiredLocks(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("lock_cleanup_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("lock_cleanup_completed", zap.Int64("cleared_locks", cleared))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"cleared_locks": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
