package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/objectstore"
	"github.com/dukerupert/cabinshare/internal/store"
)

// ImageHandler manages the shared image library used by checklist items.
type ImageHandler struct {
	imageStore *store.ImageStore
	objects    *objectstore.Store
	events     Broadcaster
	logger     *slog.Logger
}

func NewImageHandler(is *store.ImageStore, objects *objectstore.Store, events Broadcaster, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{imageStore: is, objects: objects, events: orNop(events), logger: logger}
}

// Upload handles POST /api/images (multipart field "file").
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	if !h.objects.Configured() {
		writeError(w, http.StatusServiceUnavailable, objectstore.ErrNotConfigured.Error())
		return
	}

	up, err := readUpload(w, r, "file", maxImageBytes)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	if !imageTypes[up.ContentType] {
		writeError(w, http.StatusBadRequest, "only JPEG, PNG, GIF and WebP images are allowed")
		return
	}

	key := objectstore.Key(orgID, "images", up.Filename)
	if err := h.objects.Put(ctx, key, bytes.NewReader(up.Data), int64(len(up.Data)), up.ContentType); err != nil {
		writeDomainError(w, h.logger, err, "failed to store image")
		return
	}
	img, err := h.imageStore.Create(orgID, up.Filename, key, up.ContentType, int64(len(up.Data)))
	if err != nil {
		h.logger.Error("create image", "error", err)
		if derr := h.objects.Delete(ctx, key); derr != nil {
			h.logger.Warn("remove orphaned image object", "key", key, "error", derr)
		}
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	h.events.Changed(orgID, "image", "created", img.ID)
	writeJSON(w, http.StatusCreated, img)
}

func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	images, err := h.imageStore.List(auth.OrganizationID(r.Context()))
	if err != nil {
		h.logger.Error("list images", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list images")
		return
	}
	if images == nil {
		images = []model.Image{}
	}
	writeJSON(w, http.StatusOK, images)
}

// Download handles GET /api/images/{id}/content.
func (h *ImageHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	img, err := h.imageStore.GetByID(auth.OrganizationID(ctx), id)
	if err != nil {
		h.logger.Error("get image", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if img == nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	body, err := h.objects.Get(ctx, img.ObjectKey)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to read image")
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	stream(w, body, img.ContentType, img.Filename, true)
}

// Delete handles DELETE /api/images/{id}?force=true. Without force an image
// still used by checklist items is refused.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	key, err := h.imageStore.Delete(orgID, id, r.URL.Query().Get("force") == "true")
	if errors.Is(err, store.ErrInUse) {
		writeError(w, http.StatusConflict, "image is used by checklist items")
		return
	}
	if err != nil {
		h.logger.Error("delete image", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete image")
		return
	}
	if key == "" {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if err := h.objects.Delete(ctx, key); err != nil {
		h.logger.Warn("delete image object", "key", key, "error", err)
	}

	h.events.Changed(orgID, "image", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile handles POST /api/images/reconcile.
func (h *ImageHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	corrections, err := h.imageStore.Reconcile(orgID)
	if err != nil {
		h.logger.Error("reconcile image usage", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reconcile images")
		return
	}
	if len(corrections) > 0 {
		h.logger.Info("image usage corrected", "organization_id", orgID, "count", len(corrections))
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrections": corrections})
}
