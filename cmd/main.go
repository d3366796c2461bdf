package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftapp/drift-app-backend/service"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rs/zerolog/log"
)

func main() {
	flag.Bool("debug", false, "sets log level to debug")
	flag.Int("port", 3333, "sets the port to listen on")
	flag.String("host", "0.0.0.0", "sets the host to listen on")
	flag.String("secret", "", "sets the secret for JWT")
	flag.String("mongo", "mongodb://localhost:27017", "sets the mongo URI")
	flag.String("registerAuthToken", "", "sets the registerAuthToken new users need to provide")
	flag.String("metricsID", "", "enables prometheus metrics under the given ID")

	flag.Parse()

	// Initialize Viper
	viper.SetEnvPrefix("DRIFT")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	secret := viper.GetString("secret")
	registerAuthToken := viper.GetString("registerAuthToken")
	debug := viper.GetBool("debug")
	metricsID := viper.GetString("metricsID")
	// MongoDB vars
	mongoURI := viper.GetString("mongo")

	// if no secret is provided, generate a random one
	if secret == "" {
		sb := make([]byte, 32)
		if _, err := rand.Read(sb); err != nil {
			log.Fatal().Err(err).Msg("failed to generate random secret")
		}
		secret = fmt.Sprintf("%x", sb)
		log.Warn().Msgf("no secret provided, using %s", secret)
	}

	// Registration master token
	if registerAuthToken == "" {
		sb := make([]byte, 20)
		if _, err := rand.Read(sb); err != nil {
			log.Fatal().Err(err).Msg("failed to generate random registerAuthToken")
		}
		registerAuthToken = fmt.Sprintf("%x", sb)
		log.Warn().Msgf("no registerAuthToken provided, using %s", registerAuthToken)
	}

	// create the service, connecting to MongoDB
	log.Info().Msgf("connecting to database at %s", mongoURI)
	s, err := service.New(mongoURI, secret, registerAuthToken, debug)
	if err != nil {
		log.Fatal().Err(err).Msgf("could not create the service: %v", err)
	}
	defer s.Close()

	if metricsID != "" {
		s.EnablePrometheusMetrics(metricsID)
	}
	if err := s.Start(host, port); err != nil {
		log.Fatal().Err(err).Msg("failed to start service")
	}

	log.Info().Msg("startup complete")

	// close if interrupt received
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Warn().Msgf("received SIGTERM, exiting at %s", time.Now().Format(time.RFC850))
	os.Exit(0)
}
