package service

import (
	"context"
	"fmt"
	"os"

	"github.com/driftapp/drift-app-backend/api"
	"github.com/driftapp/drift-app-backend/db"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service is the main service struct for the API backend. It owns the
// database connection, the HTTP API and the background sweeper that purges
// expired posts.
type Service struct {
	Database      *db.Database
	API           *api.API
	Sweeper       *db.ExpiredPostSweeper
	jwtSecret     string
	registerToken string
	prometheusID  string
	debug         bool
}

// New creates a new API service. It connects to MongoDB and ensures the
// collections and indexes exist. It also sets the global log level to
// InfoLevel or DebugLevel if debug is true.
// The service must be started with Service.Start().
// The database must be closed with Service.Close().
func New(mongoURI, jwtSecret, registerToken string, debug bool) (*Service, error) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().Msg("starting app backend")

	database, err := db.New(mongoURI)
	if err != nil {
		return nil, err
	}
	if err := database.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Service{
		Database:      database,
		Sweeper:       db.NewExpiredPostSweeper(database),
		jwtSecret:     jwtSecret,
		registerToken: registerToken,
		debug:         debug,
	}, nil
}

// EnablePrometheusMetrics enables the prometheus middleware under the given
// ID. Must be called before Start.
func (s *Service) EnablePrometheusMetrics(prometheusID string) {
	s.prometheusID = prometheusID
}

// Start starts the API service and the expired post sweeper.
func (s *Service) Start(host string, port int) error {
	a, err := api.New(&api.APIConfig{
		DB:            s.Database,
		JwtSecret:     s.jwtSecret,
		RegisterToken: s.registerToken,
		Debug:         s.debug,
	})
	if err != nil {
		return err
	}
	s.API = a
	if s.prometheusID != "" {
		s.API.EnablePrometheusMetrics(s.prometheusID)
	}
	s.API.Start(host, port)
	s.Sweeper.Start()
	log.Info().Msgf("api service started at %s:%d", host, port)
	return nil
}

// Close stops the sweeper and the API, which in turn stops its rate limiter
// and closes the database. When Start never ran, the database is closed
// directly.
func (s *Service) Close() {
	if s.Sweeper != nil {
		s.Sweeper.Stop()
	}
	if s.API != nil {
		s.API.Close()
		return
	}
	if err := s.Database.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}
