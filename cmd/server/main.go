package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/jusunglee/bikeshare-go/api/handlers"
	"github.com/jusunglee/bikeshare-go/internal/config"
	"github.com/jusunglee/bikeshare-go/internal/pipeline"
	"github.com/jusunglee/bikeshare-go/pkg/bikes"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var log = logrus.WithField("module", "server")

func main() {
	config.LoadDotenv()
	cfg := config.Load()

	var (
		port        = flag.String("port", cfg.Port, "Server port")
		logLevel    = flag.String("log-level", cfg.LogLevel, "log level [debug, info, warn, error, fatal, panic]")
		stationsURL = flag.String("stations", cfg.StationsURL, "Stations feed URL or file")
		tripsURL    = flag.String("trips", cfg.TripsURL, "Trips CSV URL or file")
		tripsDSN    = flag.String("trips-dsn", cfg.TripsDSN, "Trips table DSN (sqlite://path or postgres://...), replaces -trips")
		cacheDir    = flag.String("cache", cfg.CacheDir, "input cache dir path (empty means disable cache)")
		timezone    = flag.String("timezone", cfg.Timezone, "Timezone trip timestamps are recorded in")
		fixedDomain = flag.Bool("fixed-radius-domain", cfg.FixedRadiusDomain, "Keep the radius domain of the unfiltered data")
	)
	flag.Parse()

	cfg.Port = *port
	cfg.LogLevel = *logLevel
	cfg.StationsURL = *stationsURL
	cfg.TripsURL = *tripsURL
	cfg.TripsDSN = *tripsDSN
	cfg.CacheDir = *cacheDir
	cfg.Timezone = *timezone
	cfg.FixedRadiusDomain = *fixedDomain

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.0000",
	})
	level, err := cfg.Level()
	if err != nil {
		log.Fatal(err)
	}
	logrus.SetLevel(level)

	feedConfig, err := cfg.Feed()
	if err != nil {
		log.Fatal(err)
	}

	// Feeds load in the background; the API answers 503 until they are ready
	client, err := bikes.NewLocal(context.Background(), bikes.Config{
		Feed:        feedConfig,
		Viewport:    cfg.Viewport(),
		Pipeline:    pipeline.Options{FixedRadiusDomain: cfg.FixedRadiusDomain},
		LoadTimeout: cfg.LoadTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create bikes client: %v", err)
	}
	defer client.Close()

	// Create HTTP server
	r := mux.NewRouter()
	h := handlers.NewHandler(client)
	h.RegisterRoutes(r)

	// Add middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h2c.NewHandler(corsHandler(r), &http2.Server{}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
		}).Infof("%s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}
