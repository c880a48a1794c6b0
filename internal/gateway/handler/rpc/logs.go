package rpc

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang/glog"

	"sketchbook/internal/sketch/api"
)

// ServeRunLog serves GET /runs/{runID}/log. Stores that can presign a URL
// answer with a redirect.
func (h *Handler) ServeRunLog(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("runID"))
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "run id is required", http.StatusBadRequest)
		return
	}
	if u, err := h.runs.LogURL(r.Context(), runID); err == nil && u != "" {
		http.Redirect(w, r, u, http.StatusTemporaryRedirect)
		return
	}
	data, err := h.runs.Log(r.Context(), runID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		glog.Errorf("[rpc] run log %s: %v", runID, err)
		http.Error(w, "failed to read run log", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}
