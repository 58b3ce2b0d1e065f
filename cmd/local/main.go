package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jusunglee/bikeshare-go/internal/config"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/jusunglee/bikeshare-go/internal/pipeline"
	"github.com/jusunglee/bikeshare-go/pkg/bikes"
	"github.com/sirupsen/logrus"
)

func main() {
	config.LoadDotenv()
	cfg := config.Load()

	var (
		stationsURL = flag.String("stations", cfg.StationsURL, "Stations feed URL or file")
		tripsURL    = flag.String("trips", cfg.TripsURL, "Trips CSV URL or file")
		tripsDSN    = flag.String("trips-dsn", cfg.TripsDSN, "Trips table DSN (sqlite://path or postgres://...)")
		cacheDir    = flag.String("cache", cfg.CacheDir, "input cache dir path (empty means disable cache)")
		at          = flag.String("at", "", "Time of day to filter on, e.g. 08:30 (empty means any time)")
		lat         = flag.Float64("lat", 0, "Latitude, with -lon lists the nearest stations instead")
		lon         = flag.Float64("lon", 0, "Longitude")
		limit       = flag.Int("limit", 10, "Number of stations to print")
		logLevel    = flag.String("log-level", "warn", "log level [debug, info, warn, error, fatal, panic]")
	)
	flag.Parse()

	cfg.StationsURL = *stationsURL
	cfg.TripsURL = *tripsURL
	cfg.TripsDSN = *tripsDSN
	cfg.CacheDir = *cacheDir
	cfg.LogLevel = *logLevel

	level, err := cfg.Level()
	if err != nil {
		fatal("Invalid log level", err)
	}
	logrus.SetLevel(level)

	filter, err := parseClock(*at)
	if err != nil {
		fatal("Invalid -at value", err)
	}

	feedConfig, err := cfg.Feed()
	if err != nil {
		fatal("Invalid configuration", err)
	}

	client, err := bikes.NewLocal(context.Background(), bikes.Config{
		Feed:        feedConfig,
		Viewport:    cfg.Viewport(),
		Pipeline:    pipeline.Options{FixedRadiusDomain: cfg.FixedRadiusDomain},
		LoadTimeout: cfg.LoadTimeout,
	})
	if err != nil {
		fatal("Failed to create bikes client", err)
	}
	defer client.Close()

	fmt.Println("Loading trips...")
	if err := client.Wait(context.Background()); err != nil {
		fatal("Failed to load data", err)
	}

	update, err := client.SetFilter(filter)
	if err != nil {
		fatal("Failed to apply filter", err)
	}

	var markers []models.Marker
	if *lat != 0 || *lon != 0 {
		markers, err = client.GetMarkersByLocation(*lat, *lon, *limit)
		fmt.Printf("\nNearest stations to (%.4f, %.4f)", *lat, *lon)
	} else {
		markers, err = client.GetBusiest(*limit)
		fmt.Printf("\nBusiest stations")
	}
	if err != nil {
		fatal("Failed to get stations", err)
	}

	if filter.IsAnyTime() {
		fmt.Printf(" at any time (%d trips):\n", update.TripCount)
	} else {
		fmt.Printf(" around %s (%d trips):\n", filter.Label(), update.TripCount)
	}
	for _, m := range markers {
		fmt.Printf("\n%s (%s)\n", m.Name, m.StationID)
		fmt.Printf("  %s\n", m.Title)
		fmt.Printf("  radius %.1f, departure ratio %.1f\n", m.Radius, m.DepartureRatio)
	}

	fmt.Printf("\nComputed at: %s\n", client.GetLastUpdate().Format("3:04 PM"))
}

// parseClock reads an HH:MM time of day into a filter
func parseClock(s string) (models.TimeFilter, error) {
	if s == "" {
		return models.AnyTime, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return models.TimeFilter(t.Hour()*60 + t.Minute()), nil
}

func fatal(msg string, err error) {
	logrus.WithError(err).Error(msg)
	os.Exit(1)
}
