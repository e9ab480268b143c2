package gallery

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"restaurant-backend/internal/media"
)

const maxFormBytes = 12 << 20

type Handler struct {
	repo   *Repository
	images *media.DiskStore
}

func NewHandler(repo *Repository, images *media.DiskStore) *Handler {
	return &Handler{repo: repo, images: images}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	images, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list gallery items")
		return
	}

	writeJSON(w, http.StatusOK, images)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	image := Image{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    strings.TrimSpace(r.FormValue("category")),
	}
	if image.Title == "" {
		image.Title = "Untitled"
	}
	if image.Category == "" {
		image.Category = "general"
	}

	if !validText(w, image) {
		return
	}

	path, present, ok := h.saveFormImage(w, r)
	if !ok {
		return
	}
	if !present {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}
	image.Image = path

	created, err := h.repo.Create(r.Context(), image)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create gallery item")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid gallery item id")
		return
	}

	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	image, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "gallery item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update gallery item")
		return
	}

	if title := strings.TrimSpace(r.FormValue("title")); title != "" {
		image.Title = title
	}
	if description := strings.TrimSpace(r.FormValue("description")); description != "" {
		image.Description = description
	}
	if category := strings.TrimSpace(r.FormValue("category")); category != "" {
		image.Category = category
	}

	if !validText(w, image) {
		return
	}

	oldImage := image.Image
	path, present, ok := h.saveFormImage(w, r)
	if !ok {
		return
	}
	if present {
		image.Image = path
	}

	updated, err := h.repo.Update(r.Context(), image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "gallery item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update gallery item")
		return
	}

	if present && oldImage != "" {
		if err := h.images.Remove(oldImage); err != nil {
			sentry.CaptureException(err)
		}
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid gallery item id")
		return
	}

	image, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "gallery item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete gallery item")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "gallery item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete gallery item")
		return
	}

	if image.Image != "" {
		if err := h.images.Remove(image.Image); err != nil {
			sentry.CaptureException(err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) saveFormImage(w http.ResponseWriter, r *http.Request) (string, bool, bool) {
	data, extension, present, err := media.ReadFormImage(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image must be a jpeg, png or webp file under 10MB")
		return "", present, false
	}
	if !present {
		return "", false, true
	}

	path, err := h.images.Save("gallery", extension, data)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			writeError(w, http.StatusBadRequest, "image must be a jpeg, png or webp file")
			return "", true, false
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return "", true, false
	}

	return path, true, true
}

func validText(w http.ResponseWriter, image Image) bool {
	if !utf8.ValidString(image.Title) || len(image.Title) > 150 {
		writeError(w, http.StatusBadRequest, "title is invalid")
		return false
	}
	if !utf8.ValidString(image.Description) || len(image.Description) > 1000 {
		writeError(w, http.StatusBadRequest, "description is invalid")
		return false
	}
	if !utf8.ValidString(image.Category) || len(image.Category) > 50 {
		writeError(w, http.StatusBadRequest, "category is invalid")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
