package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/auth"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps a typed error to its HTTP response. The body carries the
// stable kind and a human message; internal detail goes to the log only.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, kind.HTTPStatus(), map[string]string{
		"kind":  kind.String(),
		"error": apperr.Message(err),
	})
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.Validation, "invalid %s", name)
	}
	return id, nil
}

// requireHousehold enforces the household-scope rule: the authenticated
// user's household must match the requested one. The same Forbidden comes
// back whether or not the target exists, so existence never leaks.
func requireHousehold(r *http.Request, householdID int64) error {
	if !auth.InHousehold(r.Context(), householdID) {
		return apperr.New(apperr.Forbidden, "not a member of this household")
	}
	return nil
}
