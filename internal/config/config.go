package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/skmto/arktwim-sample/internal/spatial"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	LogLevel       string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	StaleAfter        time.Duration
	SweepInterval     time.Duration
	BroadcastInterval time.Duration
	SpatialIndex      string
	DefaultNeighbors  int
	AgentSimURL       string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "2237"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SpatialIndex:   getEnv("SPATIAL_INDEX", spatial.KindLinear),
		AgentSimURL:    strings.TrimRight(getEnv("AGENTSIM_URL", "http://localhost:8081"), "/"),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	if config.StaleAfter, err = parseDuration("STALE_AFTER", "0"); err != nil {
		return nil, err
	}
	if config.SweepInterval, err = parseDuration("SWEEP_INTERVAL", "1s"); err != nil {
		return nil, err
	}
	if config.SweepInterval <= 0 {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: must be positive")
	}
	if config.BroadcastInterval, err = parseDuration("BROADCAST_INTERVAL", "200ms"); err != nil {
		return nil, err
	}
	if config.BroadcastInterval <= 0 {
		return nil, fmt.Errorf("invalid BROADCAST_INTERVAL: must be positive")
	}

	if _, err := spatial.New(config.SpatialIndex); err != nil {
		return nil, fmt.Errorf("invalid SPATIAL_INDEX: %w", err)
	}

	defaultNeighbors, err := strconv.Atoi(getEnv("DEFAULT_NEIGHBORS", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_NEIGHBORS: %w", err)
	}
	if defaultNeighbors < 0 {
		return nil, fmt.Errorf("invalid DEFAULT_NEIGHBORS: %d", defaultNeighbors)
	}
	config.DefaultNeighbors = defaultNeighbors

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", key)
	}
	return d, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
