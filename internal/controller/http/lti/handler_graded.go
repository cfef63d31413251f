package lti

import (
	"errors"
	"net/http"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	"github.com/quipper/poc/lti/tool/pkg/repositories/grades"
)

func (h *Handler) listGradedResources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := grades.Filter{Principal: q.Get("principal"), ContentRef: q.Get("content_ref")}
	items, err := h.grades.List(r.Context(), f)
	if err != nil {
		logger.Error("list graded resources: %v", err)
		http.Error(w, "failed to list graded resources", http.StatusInternalServerError)
		return
	}
	if items == nil {
		// Ensure [] instead of null
		items = []*grades.GradedResourceLink{}
	}
	logger.Debug("listGradedResources: returned %d items", len(items))
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getGradedResource(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	item, err := h.grades.Get(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		logger.Debug("getGradedResource: not found id=%d", id)
		http.NotFound(w, r)
		return
	}
	if err != nil {
		logger.Error("get graded resource %d: %v", id, err)
		http.Error(w, "failed to get graded resource", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
