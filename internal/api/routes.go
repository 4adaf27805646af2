package api

import "github.com/go-chi/chi/v5"

func RegisterRoutes(mux chi.Router, h *Handlers) {
	mux.Get("/healthz", h.Health)
	mux.Get("/readyz", h.Ready)
	mux.Get("/version", h.Version)

	mux.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Get("/models", h.ListModels)
		r.Get("/history/{id}", h.GetHistory)
		r.Delete("/history/{id}", h.ResetHistory)
		r.Get("/sessions", h.ListSessions)
		r.Delete("/sessions/{id}", h.DropSession)
	})
}
