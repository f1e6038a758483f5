package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

type NoteHandler struct {
	noteStore *store.NoteStore
	events    Broadcaster
	logger    *slog.Logger
}

func NewNoteHandler(ns *store.NoteStore, events Broadcaster, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{noteStore: ns, events: orNop(events), logger: logger}
}

var validPriorities = map[string]bool{
	"urgent": true,
	"normal": true,
	"low":    true,
}

type noteRequest struct {
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Category  string     `json:"category"`
	Pinned    bool       `json:"pinned"`
	Priority  string     `json:"priority"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (req *noteRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.Priority == "" {
		req.Priority = "normal"
	}
	if !validPriorities[req.Priority] {
		return "priority must be urgent, normal, or low"
	}
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		req.Category = "general"
	}
	return ""
}

func (req *noteRequest) apply(n *model.SharedNote) {
	n.Title = req.Title
	n.Body = req.Body
	n.Category = req.Category
	n.Priority = req.Priority
	n.Pinned = req.Pinned
	n.ExpiresAt = req.ExpiresAt
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	n := &model.SharedNote{OrganizationID: orgID}
	req.apply(n)
	if uid := auth.UserID(ctx); uid != 0 {
		n.AuthorID = &uid
	}
	note, err := h.noteStore.Create(n)
	if err != nil {
		h.logger.Error("create note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create note")
		return
	}

	h.events.Changed(orgID, "note", "created", note.ID)
	writeJSON(w, http.StatusCreated, note)
}

// List handles GET /api/notes?pinned=true. Expired notes are purged first.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	purged, err := h.noteStore.DeleteExpired(orgID, time.Now())
	if err != nil {
		h.logger.Warn("purge expired notes", "error", err)
	} else if purged > 0 {
		h.logger.Info("expired notes purged", "organization_id", orgID, "count", purged)
		h.events.Changed(orgID, "note", "deleted", 0)
	}

	var notes []model.SharedNote
	if r.URL.Query().Get("pinned") == "true" {
		notes, err = h.noteStore.ListPinned(orgID)
	} else {
		notes, err = h.noteStore.List(orgID)
	}
	if err != nil {
		h.logger.Error("list notes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notes")
		return
	}
	if notes == nil {
		notes = []model.SharedNote{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.noteStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get note")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	req.apply(existing)
	note, err := h.noteStore.Update(existing)
	if err != nil {
		h.logger.Error("update note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update note")
		return
	}

	h.events.Changed(orgID, "note", "updated", id)
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.noteStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get note")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	if err := h.noteStore.Delete(orgID, id); err != nil {
		h.logger.Error("delete note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete note")
		return
	}

	h.events.Changed(orgID, "note", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *NoteHandler) TogglePinned(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	note, err := h.noteStore.TogglePinned(orgID, id)
	if err != nil {
		h.logger.Error("toggle note pin", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle pin")
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	h.events.Changed(orgID, "note", "pinned", id)
	writeJSON(w, http.StatusOK, note)
}
