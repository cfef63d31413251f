package lti

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quipper/poc/lti/tool/internal/ltitool"
	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	"github.com/quipper/poc/lti/tool/pkg/repositories/library"
	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

func (h *Handler) createPlatform(w http.ResponseWriter, r *http.Request) {
	logger.Debug("createPlatform: start")
	var req platform.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug("createPlatform: invalid JSON: %v", err)
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		logger.Debug("createPlatform: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := h.platforms.Create(r.Context(), &req)
	if errors.Is(err, repositories.ErrAlreadyExists) {
		http.Error(w, "platform already registered for issuer and client_id", http.StatusConflict)
		return
	}
	if err != nil {
		logger.Error("register platform: %v", err)
		http.Error(w, "failed to register platform", http.StatusInternalServerError)
		return
	}
	logger.Info("registered platform id=%d iss=%s client_id=%s", id, req.Issuer, req.ClientID)
	created, err := h.platforms.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("get platform %d: %v", id, err)
		http.Error(w, "failed to get platform", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listPlatforms(w http.ResponseWriter, r *http.Request) {
	items, err := h.platforms.List(r.Context())
	if err != nil {
		logger.Error("list platforms: %v", err)
		http.Error(w, "failed to list platforms", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []*platform.Registration{}
	}
	logger.Debug("listPlatforms: returned %d items", len(items))
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getPlatform(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	item, err := h.platforms.GetByID(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		logger.Error("get platform by id %d: %v", id, err)
		http.Error(w, "failed to get platform", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) deletePlatform(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	err := h.platforms.DeleteByID(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		logger.Error("delete platform by id %d: %v", id, err)
		http.Error(w, "failed to delete platform", http.StatusInternalServerError)
		return
	}
	logger.Info("deleted platform id=%d", id)
	w.WriteHeader(http.StatusNoContent)
}

// authorizeLibrary lets the platform launch into a library, creating the library when needed.
func (h *Handler) authorizeLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var body struct {
		LibraryKey string `json:"library_key"`
		Title      string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	key, err := ltitool.ParseLibraryKey(body.LibraryKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.platforms.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		logger.Error("get platform by id %d: %v", id, err)
		http.Error(w, "failed to get platform", http.StatusInternalServerError)
		return
	}
	err = h.libraries.CreateLibrary(r.Context(), &library.Library{Key: key.String(), Title: body.Title})
	if err != nil && !errors.Is(err, repositories.ErrAlreadyExists) {
		logger.Error("create library %s: %v", key, err)
		http.Error(w, "failed to create library", http.StatusInternalServerError)
		return
	}
	if err := h.libraries.AuthorizePlatform(r.Context(), key.String(), id); err != nil {
		logger.Error("authorize platform %d on %s: %v", id, key, err)
		http.Error(w, "failed to authorize platform", http.StatusInternalServerError)
		return
	}
	logger.Info("library %s now accepts launches from platform %d", key, id)
	w.WriteHeader(http.StatusNoContent)
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		logger.Debug("invalid id=%q", idStr)
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
