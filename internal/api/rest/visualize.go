package rest

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/export"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/validate"
)

// visualizeRequest parses the path and query of a visualize call, writing a 400 on failure.
func visualizeRequest(w http.ResponseWriter, r *http.Request) (models.VisualizeRequest, bool) {
	vars := mux.Vars(r)
	namespace, name := vars["namespace"], vars["name"]
	if !validate.Namespace(namespace) {
		respondBadRequest(w, r, "Invalid namespace")
		return models.VisualizeRequest{}, false
	}
	if !validate.Name(name) {
		respondBadRequest(w, r, "Invalid topology name")
		return models.VisualizeRequest{}, false
	}

	q := r.URL.Query()
	view, ok := models.ParseViewMode(q.Get("view"))
	if !ok {
		respondBadRequest(w, r, fmt.Sprintf("Invalid view %q: use kubernetes or network", q.Get("view")))
		return models.VisualizeRequest{}, false
	}
	direction, ok := models.ParseDirection(q.Get("direction"))
	if !ok {
		respondBadRequest(w, r, fmt.Sprintf("Invalid direction %q: use horizontal or vertical", q.Get("direction")))
		return models.VisualizeRequest{}, false
	}
	return models.VisualizeRequest{
		Namespace: namespace,
		Topology:  name,
		View:      view,
		Direction: direction,
	}, true
}

// Visualize handles GET /namespaces/{namespace}/topologies/{name}/visualize
// A result is discarded with 409 when a newer request of the same ?session= began meanwhile.
func (h *Handler) Visualize(w http.ResponseWriter, r *http.Request) {
	req, ok := visualizeRequest(w, r)
	if !ok {
		return
	}
	session := r.URL.Query().Get("session")
	if session != "" && !validate.SessionID(session) {
		respondBadRequest(w, r, "Invalid session")
		return
	}

	result, err := h.visualizeService.Visualize(r.Context(), req, session)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ExportVisualization handles GET /namespaces/{namespace}/topologies/{name}/visualize/export
func (h *Handler) ExportVisualization(w http.ResponseWriter, r *http.Request) {
	req, ok := visualizeRequest(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondBadRequest(w, r, err.Error())
		return
	}

	data, err := h.visualizeService.Export(r.Context(), req, format)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("%s-%s-%s.%s", req.Namespace, req.Topology, req.View, format.Extension())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
