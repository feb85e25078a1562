// internal/handlers/server.go
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/webdarts/signaling-service/internal/config"
	"github.com/webdarts/signaling-service/internal/ice"
	"github.com/webdarts/signaling-service/internal/lifecycle"
	"github.com/webdarts/signaling-service/internal/middleware"
	"github.com/webdarts/signaling-service/internal/registry"
	"github.com/webdarts/signaling-service/internal/relay"
	"github.com/webdarts/signaling-service/internal/tracker"
)

// Server bundles the signaling core behind the HTTP and WebSocket surface.
type Server struct {
	logger   *logrus.Logger
	registry *registry.Registry
	tracker  *tracker.Tracker
	relay    *relay.Relay
	monitor  *lifecycle.Monitor
	ice      *ice.Provider
	cfg      config.Config

	// StorageMode reports which room store is serving: "durable" or
	// "fallback". Nil means no durable backend is configured at all and the
	// health endpoint reports "memory".
	StorageMode func() string

	started time.Time
}

func NewServer(
	logger *logrus.Logger,
	reg *registry.Registry,
	tr *tracker.Tracker,
	rl *relay.Relay,
	mon *lifecycle.Monitor,
	iceProvider *ice.Provider,
	cfg config.Config,
) *Server {
	return &Server{
		logger:   logger,
		registry: reg,
		tracker:  tr,
		relay:    rl,
		monitor:  mon,
		ice:      iceProvider,
		cfg:      cfg,
		started:  time.Now(),
	}
}

// Router builds the chi router with CORS and request logging applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Log(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.Health)
		api.Get("/ice-servers", s.IceServers)

		api.Post("/rooms", s.CreateRoom)
		api.Get("/rooms", s.ListRooms)
		api.Post("/rooms/end-call", s.EndCall)

		api.Route("/rooms/{code}", func(room chi.Router) {
			room.Get("/", s.GetRoom)
			room.Delete("/", s.DeleteRoom)
			room.Post("/join", s.JoinRoom)
			room.Put("/status", s.UpdateStatus)
		})
	})

	r.Get("/ws", s.HandleWS)

	return r
}
