package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/clabconsole/clabconsole-backend/internal/k8s"
	"github.com/clabconsole/clabconsole-backend/internal/service"
)

// ClusterAPI is the cluster access the REST handlers need; implemented by *k8s.Client.
type ClusterAPI interface {
	ListTopologies(ctx context.Context, namespace string) ([]unstructured.Unstructured, error)
	GetTopology(ctx context.Context, namespace, name string) (*unstructured.Unstructured, error)
	CreateTopology(ctx context.Context, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	ReplaceTopology(ctx context.Context, namespace, name string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	DeleteTopology(ctx context.Context, namespace, name string) error
	ListNamespaces(ctx context.Context) ([]string, error)
	ListSecrets(ctx context.Context, namespace string, pullSecretsOnly bool) ([]string, error)
	HealthStatus() (isHealthy bool, lastSuccess time.Time, lastErr error, circuitState k8s.CircuitBreakerState)
}

// Handler manages HTTP request handlers
type Handler struct {
	cluster          ClusterAPI
	visualizeService service.VisualizeService
	logger           *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(cluster ClusterAPI, vs service.VisualizeService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cluster:          cluster,
		visualizeService: vs,
		logger:           logger,
	}
}

// SetupRoutes configures API routes
func SetupRoutes(router *mux.Router, h *Handler) {
	// Visualization
	router.HandleFunc("/namespaces/{namespace}/topologies/{name}/visualize", h.Visualize).Methods("GET")
	router.HandleFunc("/namespaces/{namespace}/topologies/{name}/visualize/export", h.ExportVisualization).Methods("GET")

	// Topologies
	router.HandleFunc("/topologies", h.ListTopologies).Methods("GET")
	router.HandleFunc("/namespaces/{namespace}/topologies", h.ListTopologies).Methods("GET")
	router.HandleFunc("/namespaces/{namespace}/topologies", h.CreateTopology).Methods("POST")
	router.HandleFunc("/namespaces/{namespace}/topologies/{name}", h.GetTopology).Methods("GET")
	router.HandleFunc("/namespaces/{namespace}/topologies/{name}", h.ReplaceTopology).Methods("PUT")
	router.HandleFunc("/namespaces/{namespace}/topologies/{name}", h.DeleteTopology).Methods("DELETE")

	// Namespaces & secrets
	router.HandleFunc("/namespaces", h.ListNamespaces).Methods("GET")
	router.HandleFunc("/namespaces/{namespace}/secrets", h.ListSecrets).Methods("GET")
}

// Health handles GET /health. The process is alive whenever it answers; the body reports the
// cluster connection so a probe can tell an open circuit breaker apart from a healthy backend.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	healthy, lastSuccess, lastErr, state := h.cluster.HealthStatus()
	body := map[string]interface{}{
		"status":  "healthy",
		"circuit": state.String(),
	}
	if !lastSuccess.IsZero() {
		body["last_success"] = lastSuccess.UTC().Format(time.RFC3339)
	}
	if !healthy {
		body["status"] = "degraded"
		if lastErr != nil {
			body["last_error"] = lastErr.Error()
		}
	}
	status := http.StatusOK
	if state == k8s.StateOpen {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, body)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
