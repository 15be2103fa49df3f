package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type ServerEnv struct {
	Env        string `envconfig:"ENV" default:"local"`
	HTTPPort   string `envconfig:"HTTP_PORT" default:"8008"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"*"`
}

type DatabaseEnv struct {
	Path     string `envconfig:"DB_PATH" default:"tasks-board.db"`
	LogLevel string `envconfig:"DB_LOG_LEVEL" default:"warn"`
	// AssigneeCacheTTL bounds how long a resolved assignee is reused before the users table is read again.
	AssigneeCacheTTL time.Duration `envconfig:"ASSIGNEE_CACHE_TTL" default:"1m"`
}

type AuthEnv struct {
	JWTSecret   string        `envconfig:"JWT_SECRET" default:"development-insecure-secret-change-me"`
	JWTIssuer   string        `envconfig:"JWT_ISSUER" default:"taskboard-api"`
	JWTAudience string        `envconfig:"JWT_AUDIENCE" default:"taskboard-clients"`
	JWTTTL      time.Duration `envconfig:"JWT_TTL" default:"24h"`
}

const devJWTSecret = "development-insecure-secret-change-me"

// InsecureSecret reports whether the signing key is the development default.
func (e *AuthEnv) InsecureSecret() bool {
	return e.JWTSecret == "" || e.JWTSecret == devJWTSecret
}

// SeedEnv describes the admin account created at startup. Seeding is skipped when AdminPassword is empty.
type SeedEnv struct {
	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:"admin@taskboard.local"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
	AdminName     string `envconfig:"ADMIN_NAME" default:"Admin"`
}

type Env struct {
	ServerEnv
	DatabaseEnv
	AuthEnv
	SeedEnv
}

const namespace = "TASKBOARD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *ServerEnv) SlogLevel() slog.Level {
	return parseLevel(e.LogLevel)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
