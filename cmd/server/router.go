package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/converse-api/internal/api"
	apimiddleware "github.com/phrazzld/converse-api/internal/api/middleware"
	"github.com/phrazzld/converse-api/internal/service"
)

// newRouter creates and configures the application router with all
// routes and middleware.
func newRouter(taskService service.TaskService, appLogger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.Trace)

	taskHandler := api.NewTaskHandler(taskService)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", taskHandler.AdvanceTask)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Delete("/tasks/{id}", taskHandler.DeleteTask)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			appLogger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
