package handlers

import (
	"github.com/gorilla/mux"
)

// Router builds the administration router. Middleware is applied by the
// caller.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")

	// Queue administration
	api := r.PathPrefix("/api/queue").Subrouter()
	api.HandleFunc("/tasks", h.AddTask).Methods("POST")
	api.HandleFunc("/tasks/batch", h.AddTaskBatch).Methods("POST")
	api.HandleFunc("/stats", h.QueueStats).Methods("GET")
	api.HandleFunc("/failed", h.ListFailed).Methods("GET")
	api.HandleFunc("/failed/batch-retry", h.RetryFailedBatch).Methods("POST")
	api.HandleFunc("/failed/batch-delete", h.DeleteFailedBatch).Methods("DELETE")
	api.HandleFunc("/failed/{taskId:[0-9]+}/retry", h.RetryFailedTask).Methods("POST")
	api.HandleFunc("/failed/{taskId:[0-9]+}", h.DeleteFailedTask).Methods("DELETE")

	return r
}
