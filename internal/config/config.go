// Package config loads shoplens runtime configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults used when neither the environment nor flags provide a value.
const (
	DefaultAddr          = ":8080"
	DefaultCameraFPS     = 15
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultMinScore      = 0.5
	DefaultMaxDetections = 20
	DefaultSearchURL     = "https://www.amazon.com/s?k={query}"
)

// Config holds everything needed to wire the application.
type Config struct {
	Addr            string
	CameraID        int
	CameraFPS       int
	ModelPath       string
	ModelConfigPath string
	DataDir         string
	WebDir          string
	PollInterval    time.Duration
	MinScore        float64
	MaxDetections   int
	SearchURL       string
	LogLevel        string
	LogJSON         bool
	Tray            bool
}

// Load reads an optional .env file and then the process environment.
// A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	dataDir := getEnv("SHOPLENS_DATA_DIR", defaultDataDir())

	return &Config{
		Addr:            getEnv("SHOPLENS_ADDR", DefaultAddr),
		CameraID:        getEnvAsInt("SHOPLENS_CAMERA", 0),
		CameraFPS:       getEnvAsInt("SHOPLENS_CAMERA_FPS", DefaultCameraFPS),
		ModelPath:       getEnv("SHOPLENS_MODEL", DefaultModelPath(dataDir)),
		ModelConfigPath: getEnv("SHOPLENS_MODEL_CONFIG", DefaultModelConfigPath(dataDir)),
		DataDir:         dataDir,
		WebDir:          getEnv("SHOPLENS_WEB_DIR", ""),
		PollInterval:    getEnvAsDuration("SHOPLENS_POLL_INTERVAL", DefaultPollInterval),
		MinScore:        getEnvAsFloat("SHOPLENS_MIN_SCORE", DefaultMinScore),
		MaxDetections:   getEnvAsInt("SHOPLENS_MAX_DETECTIONS", DefaultMaxDetections),
		SearchURL:       getEnv("SHOPLENS_SEARCH_URL", DefaultSearchURL),
		LogLevel:        getEnv("SHOPLENS_LOG_LEVEL", "info"),
		LogJSON:         getEnvAsBool("SHOPLENS_LOG_JSON", false),
		Tray:            getEnvAsBool("SHOPLENS_TRAY", true),
	}
}

// DefaultModelPath is where the frozen graph is looked for under dataDir.
func DefaultModelPath(dataDir string) string {
	return filepath.Join(dataDir, "models", "frozen_inference_graph.pb")
}

// DefaultModelConfigPath is where the text graph is looked for under dataDir.
func DefaultModelConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")
}

// SetDataDir moves the data directory. Model paths that still point at the
// defaults under the old directory follow it; explicit paths are kept.
func (c *Config) SetDataDir(dir string) {
	if c.ModelPath == DefaultModelPath(c.DataDir) {
		c.ModelPath = DefaultModelPath(dir)
	}
	if c.ModelConfigPath == DefaultModelConfigPath(c.DataDir) {
		c.ModelConfigPath = DefaultModelConfigPath(dir)
	}
	c.DataDir = dir
}

// DBPath returns the location of the settings database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "shoplens.db")
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".shoplens"
	}
	return filepath.Join(homeDir, ".shoplens")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("750ms") or bare milliseconds ("750").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
