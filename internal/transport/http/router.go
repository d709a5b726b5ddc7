package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"trivia-live-service/internal/app"
)

// RouterConfig carries what the HTTP surface needs besides the engine.
type RouterConfig struct {
	Auth           *Authenticator
	AllowedOrigins []string
	PublicURL      string
}

// NewRouter wires REST, WebSocket and health endpoints behind CORS.
func NewRouter(ctrl *app.Controller, log logrus.FieldLogger, cfg RouterConfig) http.Handler {
	games := NewGameHandler(ctrl, log, cfg.PublicURL)
	corsPolicy := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	ws := NewWSHandler(ctrl, log, originChecker(corsPolicy))

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	// QR images are embedded with <img>, which cannot carry a bearer token.
	router.HandleFunc("/api/games/{id}/qr.png", games.QRCode).Methods(http.MethodGet)
	router.Handle("/ws", cfg.Auth.Middleware(http.HandlerFunc(ws.ServeWS)))

	api := router.PathPrefix("/api").Subrouter()
	api.Use(cfg.Auth.Middleware)
	api.HandleFunc("/games", games.CreateGame).Methods(http.MethodPost)
	api.HandleFunc("/games/by-code/{code}", games.FindByCode).Methods(http.MethodGet)
	api.HandleFunc("/games/{id}", games.GetGame).Methods(http.MethodGet)
	api.HandleFunc("/games/{id}/players", games.Join).Methods(http.MethodPost)
	api.HandleFunc("/games/{id}/start", games.Start).Methods(http.MethodPost)
	api.HandleFunc("/games/{id}/force-results", games.ForceResults).Methods(http.MethodPost)
	api.HandleFunc("/games/{id}/advance", games.Advance).Methods(http.MethodPost)
	api.HandleFunc("/games/{id}/answers", games.SubmitAnswer).Methods(http.MethodPost)
	api.HandleFunc("/games/{id}/leaderboard", games.Leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/games/{id}/question", games.Question).Methods(http.MethodGet)

	return corsPolicy.Handler(router)
}

// originChecker applies the CORS origin list to WebSocket upgrades. Requests
// without an Origin header come from non-browser clients and are allowed.
func originChecker(c *cors.Cors) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || c.OriginAllowed(r)
	}
}
