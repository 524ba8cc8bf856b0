package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HTTPMirrorTool is any tool that can also answer a read-only HTTP GET.
// Entity/stream tools that should be reachable through the loopback
// mirror implement this in addition to the mcp.Tool interface.
type HTTPMirrorTool interface {
	Tool
	// ServeHTTPQuery turns chi URL params and query values into the
	// tool's JSON arguments.
	ServeHTTPQuery(params map[string]string, query map[string][]string) (json.RawMessage, error)
}

// NewHTTPMux builds the read-only loopback mirror on 127.0.0.1:<port>
// covering /health, /api/streams, /api/streams/{id}, /api/tasks,
// /api/tasks/{id}, /api/activity, and /metrics.
func NewHTTPMux(registry *Registry, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/streams", mirrorHandler(registry, "stream_list"))
	r.Get("/api/streams/{id}", mirrorHandlerWithParam(registry, "stream_get", "id", "streamId"))
	r.Get("/api/tasks", mirrorHandler(registry, "task_list"))
	r.Get("/api/tasks/{id}", mirrorHandlerWithParam(registry, "task_get", "id", "taskId"))
	r.Get("/api/activity", mirrorHandler(registry, "activity_list"))

	return r
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			logger.Debug("http request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		})
	}
}

func mirrorHandler(registry *Registry, toolName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callTool(w, r, registry, toolName, nil, "", "")
	}
}

func mirrorHandlerWithParam(registry *Registry, toolName, urlParam, jsonField string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callTool(w, r, registry, toolName, r, urlParam, jsonField)
	}
}

func callTool(w http.ResponseWriter, r *http.Request, registry *Registry, toolName string, req *http.Request, urlParam, jsonField string) {
	tool := registry.Get(toolName)
	if tool == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tool not found: " + toolName})
		return
	}

	mirror, ok := tool.(HTTPMirrorTool)
	var args json.RawMessage
	var err error
	if ok {
		params := map[string]string{}
		if req != nil && urlParam != "" {
			params[jsonField] = chi.URLParam(req, urlParam)
		}
		args, err = mirror.ServeHTTPQuery(params, r.URL.Query())
	} else if req != nil && urlParam != "" {
		args, err = json.Marshal(map[string]string{jsonField: chi.URLParam(req, urlParam)})
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := tool.Execute(r.Context(), args)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if result.IsError {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
