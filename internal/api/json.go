package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/vaultlens/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Stage string `json:"stage,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps pipeline errors to HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	var ae *apperr.AnalysisError
	switch {
	case errors.Is(err, apperr.ErrVaultNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("vault not found"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrVaultLocked):
		writeJSON(w, http.StatusConflict, errorBody("vault is being scanned"))
	case errors.As(err, &ae):
		slog.Error(op+" failed", slog.Int64("vault_id", ae.VaultID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "analysis failed", Stage: ae.Stage})
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
