package chat

import (
	"net/http"
)

// Route defines an HTTP route registration.
type Route struct {
	Path    string
	Method  string
	Handler func(http.ResponseWriter, *http.Request)
}

// Routes returns the public routes. They sit behind API-key auth.
func Routes(h *Handler) []Route {
	return []Route{
		{Path: "/conversation/{id}", Method: http.MethodPost, Handler: h.HandleGenerate},
		{Path: "/conversation/{id}/stop-generating", Method: http.MethodPost, Handler: h.HandleStopGenerating},
		{Path: "/api/models", Method: http.MethodGet, Handler: h.HandleListModels},
	}
}

// AdminRoutes returns the routes mounted under /admin.
func AdminRoutes(h *Handler) []Route {
	return []Route{
		{Path: "/aborts", Method: http.MethodGet, Handler: h.HandleListAborts},
	}
}
