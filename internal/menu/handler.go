package menu

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
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
	items, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list menu items")
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	item := Item{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    strings.TrimSpace(r.FormValue("category")),
	}
	if item.Category == "" {
		item.Category = "main"
	}

	if !validText(w, item) {
		return
	}

	price, ok := parsePrice(w, r.FormValue("price"), true, 0)
	if !ok {
		return
	}
	item.Price = price

	imagePath, ok := h.saveFormImage(w, r)
	if !ok {
		return
	}
	item.Image = imagePath

	created, err := h.repo.Create(r.Context(), item)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create menu item")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// Update merges submitted fields over the stored item; absent fields keep
// their current values. A new image replaces and deletes the old file.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid menu item id")
		return
	}

	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	item, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "menu item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update menu item")
		return
	}

	if name := strings.TrimSpace(r.FormValue("name")); name != "" {
		item.Name = name
	}
	if description := strings.TrimSpace(r.FormValue("description")); description != "" {
		item.Description = description
	}
	if category := strings.TrimSpace(r.FormValue("category")); category != "" {
		item.Category = category
	}

	if !validText(w, item) {
		return
	}

	price, ok := parsePrice(w, r.FormValue("price"), false, item.Price)
	if !ok {
		return
	}
	item.Price = price

	oldImage := item.Image
	imagePath, ok := h.saveFormImage(w, r)
	if !ok {
		return
	}
	if imagePath != "" {
		item.Image = imagePath
	}

	updated, err := h.repo.Update(r.Context(), item)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "menu item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update menu item")
		return
	}

	if imagePath != "" && oldImage != "" {
		if err := h.images.Remove(oldImage); err != nil {
			sentry.CaptureException(err)
		}
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid menu item id")
		return
	}

	item, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "menu item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete menu item")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "menu item not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete menu item")
		return
	}

	if item.Image != "" {
		if err := h.images.Remove(item.Image); err != nil {
			sentry.CaptureException(err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) saveFormImage(w http.ResponseWriter, r *http.Request) (string, bool) {
	data, extension, present, err := media.ReadFormImage(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image must be a jpeg, png or webp file under 10MB")
		return "", false
	}
	if !present {
		return "", true
	}

	path, err := h.images.Save("menu", extension, data)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			writeError(w, http.StatusBadRequest, "image must be a jpeg, png or webp file")
			return "", false
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return "", false
	}

	return path, true
}

func validText(w http.ResponseWriter, item Item) bool {
	if item.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return false
	}
	if !utf8.ValidString(item.Name) || len(item.Name) > 150 {
		writeError(w, http.StatusBadRequest, "name is invalid")
		return false
	}
	if !utf8.ValidString(item.Description) || len(item.Description) > 1000 {
		writeError(w, http.StatusBadRequest, "description is invalid")
		return false
	}
	if !utf8.ValidString(item.Category) || len(item.Category) > 50 {
		writeError(w, http.StatusBadRequest, "category is invalid")
		return false
	}
	return true
}

func parsePrice(w http.ResponseWriter, raw string, required bool, fallback float64) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			writeError(w, http.StatusBadRequest, "price is required")
			return 0, false
		}
		return fallback, true
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price < 0 {
		writeError(w, http.StatusBadRequest, "price must be a number >= 0")
		return 0, false
	}

	return price, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
