package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	// DatabaseDSN overrides the DB_* parts when set.
	DatabaseDSN string

	RedisAddress string
	JWTSecret    string

	AllowedOrigins  string
	BodyLimitBytes  int
	RateLimitMax    int
	RateLimitWindow time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the environment, after merging an optional .env file.
func Load() Config {
	// .env is optional outside local development
	_ = godotenv.Load()

	bodyLimit := EnvInt("BODY_LIMIT_BYTES", 0)
	if bodyLimit <= 0 {
		bodyLimit = EnvInt("BODY_LIMIT_MB", 4) * 1024 * 1024
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          os.Getenv("DB_PORT"),
		DBUser:          os.Getenv("DB_USER"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBName:          os.Getenv("DB_NAME"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		RedisAddress:    os.Getenv("REDIS_ADDRESS"),
		JWTSecret:       os.Getenv("JWT_SECRET_KEY"),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "*"),
		BodyLimitBytes:  bodyLimit,
		RateLimitMax:    EnvInt("RATE_LIMIT_MAX", 60),
		RateLimitWindow: time.Duration(EnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}
}

// DSN builds the driver-specific connection string.
func (c Config) DSN() (string, error) {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN, nil
	}
	switch c.DBDriver {
	case "postgres":
		port := c.DBPort
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.DBHost, c.DBUser, c.DBPassword, c.DBName, port, c.DBSSLMode), nil
	case "mysql":
		port := c.DBPort
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
			c.DBUser, c.DBPassword, c.DBHost, port, c.DBName), nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
}

// EnvInt reads an int env var with a default fallback.
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
