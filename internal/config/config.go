// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AI          AIConfig
	Analysis    AnalysisConfig
	I18n        I18nConfig
	CORS        CORSConfig
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey string
}

// AIConfig points at the OpenAI-compatible judgment endpoint (Kolosal).
type AIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout int // per-call timeout in seconds
	MaxRetries     int
	Temperature    float64
	MaxTokens      int
}

// AnalysisConfig carries the engine knobs that are deployment-tunable.
// Scoring weights are business policy and deliberately not configurable.
type AnalysisConfig struct {
	FallbackScoreFloor  int // score assigned to a dimension when judgment is unavailable
	MaxCompareCountries int
}

type I18nConfig struct {
	DefaultLocale string
	LocalesPath   string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "exportready"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		AI: AIConfig{
			BaseURL:        getEnv("KOLOSAL_BASE_URL", "https://api.kolosal.ai/v1"),
			APIKey:         getEnv("KOLOSAL_API_KEY", ""),
			Model:          getEnv("KOLOSAL_MODEL", "kolosal-chat"),
			RequestTimeout: getEnvAsInt("AI_REQUEST_TIMEOUT", 30),
			MaxRetries:     getEnvAsInt("AI_MAX_RETRIES", 2),
			Temperature:    getEnvAsFloat("AI_TEMPERATURE", 0.2),
			MaxTokens:      getEnvAsInt("AI_MAX_TOKENS", 2000),
		},
		Analysis: AnalysisConfig{
			FallbackScoreFloor:  getEnvAsInt("ANALYSIS_FALLBACK_SCORE_FLOOR", 50),
			MaxCompareCountries: getEnvAsInt("ANALYSIS_MAX_COMPARE_COUNTRIES", 5),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
			LocalesPath:   getEnv("LOCALES_PATH", "./internal/i18n/locales"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ","),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Environment == "production" && c.AI.APIKey == "" {
		return fmt.Errorf("Kolosal API key is required in production")
	}

	if c.Analysis.FallbackScoreFloor < 0 || c.Analysis.FallbackScoreFloor > 100 {
		return fmt.Errorf("fallback score floor must be within [0,100]")
	}

	return nil
}

// Helper functions
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
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
