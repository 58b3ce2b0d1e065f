package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jusunglee/bikeshare-go/internal/feed"
	"github.com/jusunglee/bikeshare-go/internal/viewport"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

// LogLevels maps -log-level / LOG_LEVEL names to logrus levels
var LogLevels = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
	"fatal": logrus.FatalLevel,
	"panic": logrus.PanicLevel,
}

// Config holds all configuration for the bikeshare binaries
type Config struct {
	Port     string
	LogLevel string

	// Feeds
	StationsURL string
	TripsURL    string
	TripsDSN    string
	CacheDir    string
	Timezone    string
	LoadTimeout time.Duration

	// Map
	CenterLon      float64
	CenterLat      float64
	Zoom           float64
	ViewportWidth  float64
	ViewportHeight float64

	FixedRadiusDomain bool
	AllowedOrigins    []string
}

// LoadDotenv reads .env and then .env.local, which overrides it. Missing
// files are ignored.
func LoadDotenv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")
}

// Load reads configuration from environment variables with defaults
func Load() *Config {
	vp := viewport.DefaultConfig()
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StationsURL: getEnv("STATIONS_URL", feed.DefaultStationsURL),
		TripsURL:    getEnv("TRIPS_URL", feed.DefaultTripsURL),
		TripsDSN:    getEnv("TRIPS_DSN", ""),
		CacheDir:    getEnv("CACHE_DIR", ""),
		Timezone:    getEnv("TIMEZONE", "America/New_York"),
		LoadTimeout: time.Duration(getEnvInt("LOAD_TIMEOUT_SECONDS", 120)) * time.Second,

		CenterLon:      getEnvFloat("MAP_CENTER_LON", vp.Center.Lon()),
		CenterLat:      getEnvFloat("MAP_CENTER_LAT", vp.Center.Lat()),
		Zoom:           getEnvFloat("MAP_ZOOM", vp.Zoom),
		ViewportWidth:  getEnvFloat("VIEWPORT_WIDTH", vp.Width),
		ViewportHeight: getEnvFloat("VIEWPORT_HEIGHT", vp.Height),

		FixedRadiusDomain: getEnvBool("FIXED_RADIUS_DOMAIN", false),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}
}

// Location resolves Timezone. An empty name means the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Level resolves LogLevel
func (c *Config) Level() (logrus.Level, error) {
	level, ok := LogLevels[strings.ToLower(c.LogLevel)]
	if !ok {
		return 0, fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return level, nil
}

// Feed returns the feed loader configuration
func (c *Config) Feed() (feed.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return feed.Config{}, err
	}
	return feed.Config{
		StationsURL: c.StationsURL,
		TripsURL:    c.TripsURL,
		TripsDSN:    c.TripsDSN,
		CacheDir:    c.CacheDir,
		Location:    loc,
	}, nil
}

// Viewport returns the initial map viewport configuration
func (c *Config) Viewport() viewport.Config {
	vp := viewport.DefaultConfig()
	vp.Center = orb.Point{c.CenterLon, c.CenterLat}
	vp.Zoom = c.Zoom
	vp.Width = c.ViewportWidth
	vp.Height = c.ViewportHeight
	return vp
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
