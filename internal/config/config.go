// internal/config/config.go

// Package config centralizes environment-driven settings for the server and
// the historian. Every value has a default suitable for local development.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server holds the game server's settings.
type Server struct {
	ListenAddr   string
	AllowOrigins []string

	OracleURL         string
	OracleTimeout     time.Duration
	OracleMaxAttempts int

	RedisAddr string
	RedisDB   int
	QueueName string
	WordsFile string

	TotalRounds int
	RoundTime   time.Duration
	ChooseTime  time.Duration
	GraceDelay  time.Duration

	// DrawRatePerSec caps how many draw messages one connection may send per
	// second; DrawBurst is the short-term allowance above it.
	DrawRatePerSec float64
	DrawBurst      int
}

// LoadServer reads the server configuration from the environment.
func LoadServer() Server {
	return Server{
		ListenAddr:   GetEnv("LISTEN_ADDR", ":8080"),
		AllowOrigins: []string{GetEnv("CORS_ALLOW_ORIGIN", "*")},

		OracleURL:         GetEnv("ORACLE_URL", "http://localhost:5000"),
		OracleTimeout:     GetEnvDuration("ORACLE_TIMEOUT", 3*time.Second),
		OracleMaxAttempts: GetEnvInt("ORACLE_MAX_ATTEMPTS", 3),

		RedisAddr: GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   GetEnvInt("REDIS_DB", 0),
		QueueName: GetEnv("HISTORIAN_QUEUE_NAME", "sketchdash_results"),
		WordsFile: GetEnv("WORDS_FILE", ""),

		TotalRounds: GetEnvInt("GAME_TOTAL_ROUNDS", 3),
		RoundTime:   GetEnvDuration("GAME_ROUND_TIME", 80*time.Second),
		ChooseTime:  GetEnvDuration("GAME_CHOOSE_TIME", 15*time.Second),
		GraceDelay:  GetEnvDuration("GAME_GRACE_DELAY", 5*time.Second),

		DrawRatePerSec: float64(GetEnvInt("DRAW_RATE_PER_SEC", 60)),
		DrawBurst:      GetEnvInt("DRAW_BURST", 120),
	}
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt is a helper to parse an environment variable as integer, else a default value.
func GetEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// GetEnvDuration parses an environment variable with time.ParseDuration, else
// a default value.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
