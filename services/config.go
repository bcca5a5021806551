package services

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	AI        AIConfig
	Interview InterviewConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL          string
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type AIConfig struct {
	GeminiAPIKey string
	Model        string
	Timeout      time.Duration
	MaxAttempts  int
}

type InterviewConfig struct {
	// Budget communicated to the model; the session refuses to go past
	// HardCap no matter what the model says.
	MinQuestions    int
	MaxQuestions    int
	HardCap         int
	CategoryCap     int
	AbandonAfter    time.Duration
	JanitorInterval time.Duration
}

type JWTConfig struct {
	Secret string
}

type WebSocketConfig struct {
	AllowedOrigins string
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "gemini-2.5-flash")
	viper.SetDefault("gemini.timeout_seconds", "30")
	viper.SetDefault("gemini.max_attempts", "3")
	viper.SetDefault("interview.min_questions", "9")
	viper.SetDefault("interview.max_questions", "12")
	viper.SetDefault("interview.hard_cap", "15")
	viper.SetDefault("interview.category_cap", "3")
	viper.SetDefault("interview.abandon_after_minutes", "30")
	viper.SetDefault("interview.janitor_interval_minutes", "5")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("websocket.allowed_origins", "")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("gemini.model", "GEMINI_MODEL")
	viper.BindEnv("gemini.timeout_seconds", "GEMINI_TIMEOUT_SECONDS")
	viper.BindEnv("gemini.max_attempts", "GEMINI_MAX_ATTEMPTS")
	viper.BindEnv("interview.min_questions", "INTERVIEW_MIN_QUESTIONS")
	viper.BindEnv("interview.max_questions", "INTERVIEW_MAX_QUESTIONS")
	viper.BindEnv("interview.hard_cap", "INTERVIEW_HARD_CAP")
	viper.BindEnv("interview.category_cap", "INTERVIEW_CATEGORY_CAP")
	viper.BindEnv("interview.abandon_after_minutes", "INTERVIEW_ABANDON_AFTER_MINUTES")
	viper.BindEnv("interview.janitor_interval_minutes", "INTERVIEW_JANITOR_INTERVAL_MINUTES")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		AI: AIConfig{
			GeminiAPIKey: viper.GetString("gemini.api_key"),
			Model:        viper.GetString("gemini.model"),
			Timeout:      time.Duration(viper.GetInt("gemini.timeout_seconds")) * time.Second,
			MaxAttempts:  viper.GetInt("gemini.max_attempts"),
		},
		Interview: InterviewConfig{
			MinQuestions:    viper.GetInt("interview.min_questions"),
			MaxQuestions:    viper.GetInt("interview.max_questions"),
			HardCap:         viper.GetInt("interview.hard_cap"),
			CategoryCap:     viper.GetInt("interview.category_cap"),
			AbandonAfter:    time.Duration(viper.GetInt("interview.abandon_after_minutes")) * time.Minute,
			JanitorInterval: time.Duration(viper.GetInt("interview.janitor_interval_minutes")) * time.Minute,
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
	}
}
