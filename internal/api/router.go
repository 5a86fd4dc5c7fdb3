package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler, mediaDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes; the ingestion endpoints carry the API key in the body
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/chats", apiHandler.IngestChatHandler)
		r.Post("/codefragments", apiHandler.SubmitFragmentHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Chat routes
			r.Get("/chats", apiHandler.ListChatsHandler)
			r.Get("/chats/{chatID}", apiHandler.GetChatDetailsHandler)
			r.Patch("/chats/{chatID}", apiHandler.UpdateChatHandler)
			r.Delete("/chats/{chatID}", apiHandler.DeleteChatHandler)

			// Code fragment routes
			r.Get("/codefragments/{fragmentID}", apiHandler.GetFragmentHandler)
			r.Patch("/codefragments/{fragmentID}", apiHandler.UpdateFragmentHandler)
			r.Delete("/codefragments/{fragmentID}", apiHandler.DeleteFragmentHandler)

			// Profile and image moderation routes
			r.Get("/profile", apiHandler.GetProfileHandler)
			r.Post("/profile/regenerate-key", apiHandler.RegenerateAPIKeyHandler)
			r.Post("/images/{imageID}/blacklist", apiHandler.BlacklistImageHandler)
		})
	})

	// Stored image binaries
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))

	return r
}
