package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clabconsole/clabconsole-backend/internal/pkg/validate"
)

// ListNamespaces handles GET /namespaces
func (h *Handler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	names, err := h.cluster.ListNamespaces(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, names)
}

// ListSecrets handles GET /namespaces/{namespace}/secrets
// ?type=pull limits the list to image pull secrets, offered when creating a Topology.
func (h *Handler) ListSecrets(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if !validate.Namespace(namespace) {
		respondBadRequest(w, r, "Invalid namespace")
		return
	}
	var pullOnly bool
	switch r.URL.Query().Get("type") {
	case "":
	case "pull":
		pullOnly = true
	default:
		respondBadRequest(w, r, "Invalid type: use pull or omit")
		return
	}

	names, err := h.cluster.ListSecrets(r.Context(), namespace, pullOnly)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, names)
}
