package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/driftapp/drift-app-backend/db"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	jwtExpiration = 720 * time.Hour // 30 days
	passwordSalt  = "drift"         // salt for password hashing
)

// Proximity query bounds. Client-supplied radii are clamped into these
// ranges server-side; they are never widened.
const (
	MinRadiusKm     = 1.0
	MaxPostRadiusKm = 100.0
	MaxUserRadiusKm = 60.0
)

type APIConfig struct {
	DB            *db.Database
	JwtSecret     string
	RegisterToken string
	Debug         bool
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	database          *db.Database
	auth              *jwtauth.JWTAuth
	registerAuthToken string
	rateLimiter       *PostRateLimiter
	prometheusID      string
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if conf.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().Msg("starting app backend")

	return &API{
		auth:              jwtauth.New("HS256", []byte(conf.JwtSecret), nil),
		database:          conf.DB,
		registerAuthToken: conf.RegisterToken,
		rateLimiter:       NewPostRateLimiter(),
	}, nil
}

// EnablePrometheusMetrics enables go-chi prometheus metrics under specified ID.
// If ID empty, the default "gochi_http" is used. Must be called before Start.
func (a *API) EnablePrometheusMetrics(prometheusID string) {
	if prometheusID == "" {
		prometheusID = "gochi_http"
	}
	a.prometheusID = prometheusID
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start(host string, port int) {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", host, port), a.router()); err != nil {
			log.Fatal().Err(err).Msg("failed to start api router")
		}
	}()
}

// Close stops the rate limiter's background cleanup and closes the API
// service database.
func (a *API) Close() {
	a.rateLimiter.Stop()
	if err := a.database.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

// router creates the router with all the routes and middleware.
func (a *API) router() http.Handler {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	if a.prometheusID != "" {
		a.enablePrometheus(r)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 30*time.Second))
	r.Use(middleware.Timeout(30 * time.Second))

	// Protected routes
	r.Group(func(r chi.Router) {
		// Seek, verify and validate JWT tokens
		r.Use(jwtauth.Verifier(a.auth))

		// Handle valid JWT tokens.
		r.Use(a.authenticator)

		// Track user liveness
		r.Use(a.lastSeenMiddleware)

		// Register domain-specific routes
		a.RegisterPostRoutes(r)
		a.RegisterUserRoutes(r)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Error().Err(err).Msg("failed to write response")
			}
		})

		// Register public domain-specific routes
		a.RegisterPublicUserRoutes(r)

		// Info route
		log.Info().Msg("register route GET /info")
		r.Get("/info", a.routerHandler(a.infoHandler))
	})

	return r
}

// info handler returns the basic info about the API.
func (a *API) infoHandler(r *Request) (interface{}, error) {
	ctx := context.Background()

	userCount, err := a.database.UserService.CountUsers(ctx)
	if err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to count users: %w", err))
	}

	postCount, err := a.database.PostService.CountPosts(ctx)
	if err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to count posts: %w", err))
	}

	return &Info{
		Users: int(userCount),
		Posts: int(postCount),
	}, nil
}
