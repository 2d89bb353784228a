package rest

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/clabconsole/clabconsole-backend/internal/k8s"
	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/validate"
)

// ListTopologies handles GET /topologies and GET /namespaces/{namespace}/topologies
func (h *Handler) ListTopologies(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if namespace != "" && !validate.Namespace(namespace) {
		respondBadRequest(w, r, "Invalid namespace")
		return
	}

	items, err := h.cluster.ListTopologies(r.Context(), namespace)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	summaries := make([]models.TopologySummary, 0, len(items))
	for i := range items {
		summaries = append(summaries, k8s.SummarizeTopology(&items[i]))
	}
	respondJSON(w, http.StatusOK, summaries)
}

// GetTopology handles GET /namespaces/{namespace}/topologies/{name}
// ?format=yaml returns the object as YAML for the console's editor.
func (h *Handler) GetTopology(w http.ResponseWriter, r *http.Request) {
	namespace, name, ok := topologyPath(w, r)
	if !ok {
		return
	}

	obj, err := h.cluster.GetTopology(r.Context(), namespace, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "yaml" {
		data, err := yaml.Marshal(obj.Object)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("encode topology %s/%s: %w", namespace, name, err))
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}
	respondJSON(w, http.StatusOK, obj.Object)
}

// CreateTopology handles POST /namespaces/{namespace}/topologies
func (h *Handler) CreateTopology(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if !validate.Namespace(namespace) {
		respondBadRequest(w, r, "Invalid namespace")
		return
	}
	obj, ok := h.decodeTopology(w, r)
	if !ok {
		return
	}
	if !validate.Name(obj.GetName()) {
		respondBadRequest(w, r, "metadata.name must be a valid resource name")
		return
	}

	created, err := h.cluster.CreateTopology(r.Context(), namespace, obj)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("topology created", "namespace", namespace, "name", created.GetName())
	respondJSON(w, http.StatusCreated, created.Object)
}

// ReplaceTopology handles PUT /namespaces/{namespace}/topologies/{name}
func (h *Handler) ReplaceTopology(w http.ResponseWriter, r *http.Request) {
	namespace, name, ok := topologyPath(w, r)
	if !ok {
		return
	}
	obj, ok := h.decodeTopology(w, r)
	if !ok {
		return
	}
	if obj.GetName() != "" && obj.GetName() != name {
		respondBadRequest(w, r, fmt.Sprintf("metadata.name %q does not match %q", obj.GetName(), name))
		return
	}

	replaced, err := h.cluster.ReplaceTopology(r.Context(), namespace, name, obj)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("topology replaced", "namespace", namespace, "name", name)
	respondJSON(w, http.StatusOK, replaced.Object)
}

// DeleteTopology handles DELETE /namespaces/{namespace}/topologies/{name}
func (h *Handler) DeleteTopology(w http.ResponseWriter, r *http.Request) {
	namespace, name, ok := topologyPath(w, r)
	if !ok {
		return
	}

	if err := h.cluster.DeleteTopology(r.Context(), namespace, name); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("topology deleted", "namespace", namespace, "name", name)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Topology deleted"})
}

func topologyPath(w http.ResponseWriter, r *http.Request) (namespace, name string, ok bool) {
	vars := mux.Vars(r)
	namespace, name = vars["namespace"], vars["name"]
	if !validate.Namespace(namespace) {
		respondBadRequest(w, r, "Invalid namespace")
		return "", "", false
	}
	if !validate.Name(name) {
		respondBadRequest(w, r, "Invalid topology name")
		return "", "", false
	}
	return namespace, name, true
}

// decodeTopology reads a JSON or YAML Topology document. Only Topology objects are accepted;
// apiVersion and kind may be omitted.
func (h *Handler) decodeTopology(w http.ResponseWriter, r *http.Request) (*unstructured.Unstructured, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("read body: %w", err))
		return nil, false
	}
	obj := &unstructured.Unstructured{}
	// JSON is a subset of YAML, so one decoder serves both content types
	if err := yaml.Unmarshal(body, &obj.Object); err != nil {
		respondBadRequest(w, r, fmt.Sprintf("Invalid request body: %v", err))
		return nil, false
	}
	if obj.Object == nil {
		respondBadRequest(w, r, "Invalid request body: empty document")
		return nil, false
	}
	if kind := obj.GetKind(); kind != "" && kind != models.TopologyKind {
		respondBadRequest(w, r, fmt.Sprintf("kind %q is not a %s", kind, models.TopologyKind))
		return nil, false
	}
	if apiVersion := obj.GetAPIVersion(); apiVersion != "" && apiVersion != k8s.TopologyGVR.GroupVersion().String() {
		respondBadRequest(w, r, fmt.Sprintf("apiVersion %q is not %s", apiVersion, k8s.TopologyGVR.GroupVersion()))
		return nil, false
	}
	return obj, true
}
