package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/internal/hub"
	"github.com/DoyleJ11/fightcard-backend/internal/types"
	"github.com/DoyleJ11/fightcard-backend/internal/ws"
)

type Config struct {
	AdminToken    string
	DefaultCard   string
	PublicBaseURL string
	// CardTTL applies when a provisioning request names no TTL.
	CardTTL time.Duration
	WS      ws.Config
}

type API struct {
	hub *hub.Hub
	cfg Config
	log *zap.Logger
}

func (a *API) isAdmin(token string) bool {
	return types.TokenMatches(a.cfg.AdminToken, token)
}

func SetupRoutes(h *hub.Hub, cfg Config, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.WS.AdminToken = cfg.AdminToken
	cfg.WS.DefaultCard = cfg.DefaultCard
	a := &API{hub: h, cfg: cfg, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/whoami", a.whoami)
	r.Get("/ws", ws.Handler(h, cfg.WS, log.Named("ws")))

	// Unprefixed routes act on the default card.
	r.Group(func(r chi.Router) {
		r.Use(a.cardMiddleware)
		r.Get("/state", a.state)
		r.Get("/health", a.health)
		r.Post("/admin/action", a.action)
	})

	r.Route("/c/{slug}", func(r chi.Router) {
		r.Get("/ws", ws.Handler(h, cfg.WS, log.Named("ws")))
		r.Group(func(r chi.Router) {
			r.Use(a.cardMiddleware)
			r.Get("/state", a.state)
			r.Get("/health", a.health)
			r.Post("/admin/action", a.action)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAdmin)
		r.Get("/cards", a.listCards)
		r.Post("/cards", a.createCard)
		r.Delete("/cards/{slug}", a.deleteCard)
	})
	r.Get("/cards/{slug}/qr", a.cardQR)
	return r
}
