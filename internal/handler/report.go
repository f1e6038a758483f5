package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	builder *report.Builder
	logger  *slog.Logger
}

func NewReportHandler(b *report.Builder, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{builder: b, logger: logger}
}

// Financial handles GET /api/reports/financial.xlsx?year=.
func (h *ReportHandler) Financial(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.builder.Load(orgID, year)
	if err != nil {
		h.logger.Error("load financial report", "organization_id", orgID, "year", year, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	var buf bytes.Buffer
	if err := report.Write(&buf, data); err != nil {
		h.logger.Error("write financial report", "organization_id", orgID, "year", year, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="financial-%d.xlsx"`, year))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
