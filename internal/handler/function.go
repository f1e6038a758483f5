package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cabinshare/internal/functions"
)

// maxFunctionBody covers a base64 encoded Word document.
const maxFunctionBody = 16 << 20

type FunctionHandler struct {
	registry *functions.Registry
	logger   *slog.Logger
}

func NewFunctionHandler(reg *functions.Registry, logger *slog.Logger) *FunctionHandler {
	return &FunctionHandler{registry: reg, logger: logger}
}

// Call handles POST /api/functions/{name}.
func (h *FunctionHandler) Call(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFunctionBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	out, err := h.registry.Call(r.Context(), r.PathValue("name"), body)
	if err != nil {
		var fe *functions.Error
		switch {
		case errors.Is(err, functions.ErrUnknownFunction):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &fe):
			writeError(w, fe.Status, fe.Message)
		default:
			writeDomainError(w, h.logger, err, "function failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// List handles GET /api/functions.
func (h *FunctionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"functions": h.registry.Names()})
}
