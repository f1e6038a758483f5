package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/objectstore"
	"github.com/dukerupert/cabinshare/internal/store"
)

type DocumentHandler struct {
	documentStore *store.DocumentStore
	objects       *objectstore.Store
	events        Broadcaster
	logger        *slog.Logger
}

func NewDocumentHandler(ds *store.DocumentStore, objects *objectstore.Store, events Broadcaster, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{documentStore: ds, objects: objects, events: orNop(events), logger: logger}
}

// List handles GET /api/documents?category=.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documentStore.List(auth.OrganizationID(r.Context()), r.URL.Query().Get("category"))
	if err != nil {
		h.logger.Error("list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// Upload handles POST /api/documents (multipart: file, title, category,
// description).
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	if !h.objects.Configured() {
		writeError(w, http.StatusServiceUnavailable, objectstore.ErrNotConfigured.Error())
		return
	}

	up, err := readUpload(w, r, "file", maxDocumentBytes)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = up.Filename
	}
	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		category = "general"
	}

	key := objectstore.Key(orgID, "documents", up.Filename)
	if err := h.objects.Put(ctx, key, bytes.NewReader(up.Data), int64(len(up.Data)), up.ContentType); err != nil {
		writeDomainError(w, h.logger, err, "failed to store document")
		return
	}

	d := &model.Document{
		OrganizationID: orgID,
		Title:          title,
		Description:    strings.TrimSpace(r.FormValue("description")),
		Category:       category,
		Filename:       up.Filename,
		ObjectKey:      key,
		ContentType:    up.ContentType,
		SizeBytes:      int64(len(up.Data)),
	}
	if uid := auth.UserID(ctx); uid != 0 {
		d.UploadedBy = &uid
	}
	created, err := h.documentStore.Create(d)
	if err != nil {
		h.logger.Error("create document", "error", err)
		if derr := h.objects.Delete(ctx, key); derr != nil {
			h.logger.Warn("remove orphaned document object", "key", key, "error", derr)
		}
		writeError(w, http.StatusInternalServerError, "failed to save document")
		return
	}

	h.logger.Info("document uploaded", "organization_id", orgID, "id", created.ID, "size", created.SizeBytes)
	h.events.Changed(orgID, "document", "created", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// Download handles GET /api/documents/{id}/download.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	d, err := h.documentStore.GetByID(auth.OrganizationID(ctx), id)
	if err != nil {
		h.logger.Error("get document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	body, err := h.objects.Get(ctx, d.ObjectKey)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to read document")
		return
	}
	stream(w, body, d.ContentType, d.Filename, false)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	d, err := h.documentStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err := h.objects.Delete(ctx, d.ObjectKey); err != nil {
		writeDomainError(w, h.logger, err, "failed to delete document")
		return
	}
	if err := h.documentStore.Delete(orgID, id); err != nil {
		h.logger.Error("delete document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	h.events.Changed(orgID, "document", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
