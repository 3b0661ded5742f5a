// Package tickets exposes the reservation engine over a JSON HTTP API.
package tickets

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jekabolt/grbpwr-tickets/internal/auth/jwt"
	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"github.com/jekabolt/grbpwr-tickets/internal/middleware"
)

const taskSecretHeader = "X-Task-Secret"

type Config struct {
	// TaskSecret authenticates the scheduler webhook. An empty secret
	// disables the webhook.
	TaskSecret string `mapstructure:"task_secret"`
}

// Limiter admits or rejects reservation requests.
type Limiter interface {
	CheckReservation(userId, ip string) error
}

// Server implements handlers for the ticket API.
type Server struct {
	c         *Config
	engine    dependency.Engine
	scheduler dependency.Scheduler
	repo      dependency.Repository
	limiter   Limiter
	jwtAuth   *jwtauth.JWTAuth
	clock     clock.Clock
}

// New creates a new server with ticket handlers.
func New(
	c *Config,
	engine dependency.Engine,
	s dependency.Scheduler,
	repo dependency.Repository,
	limiter Limiter,
	jwtAuth *jwtauth.JWTAuth,
	clk clock.Clock,
) *Server {
	if c == nil {
		c = &Config{}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Server{
		c:         c,
		engine:    engine,
		scheduler: s,
		repo:      repo,
		limiter:   limiter,
		jwtAuth:   jwtAuth,
		clock:     clk,
	}
}

// Routes returns the /api router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(middleware.ClientIP)

	// scheduler webhook authenticates with a shared secret instead of a user token
	r.Post("/tasks/{name}", s.runTask)

	r.Group(func(r chi.Router) {
		r.Use(jwt.Authenticate(s.jwtAuth, func(w http.ResponseWriter, r *http.Request, err error) {
			_ = render.Render(w, r, ErrStatus(gerr.Unauthenticated))
		}))

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", s.requestReservation)
			r.Get("/", s.listReservations)
			r.Get("/{id}", s.getReservation)
			r.Post("/{id}/complete", s.completePurchase)
		})

		r.Route("/waitlist", func(r chi.Router) {
			r.Get("/", s.listWaitlist)
			r.Get("/{id}", s.getWaitlistEntry)
			r.Post("/{id}/claim", s.claimWaitlisted)
		})

		r.Get("/events/{eventId}/inventory", s.listInventory)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/events", s.addEvent)
			r.Post("/users", s.addUser)
		})
	})
	return r
}

func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := jwt.IdentityFromContext(r.Context())
		if !ok || !id.Admin {
			_ = render.Render(w, r, ErrStatus(gerr.AdminOnly))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// caller returns the authenticated user of r. Routes behind Authenticate
// always carry one.
func caller(r *http.Request) string {
	id, _ := jwt.IdentityFromContext(r.Context())
	return id.UserId
}
