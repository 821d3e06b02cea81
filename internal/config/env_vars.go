package config

import "os"

const (
	appNameVar = "APP_NAME"
	redisVar   = "REDIS_ADDR"
)

type EnvConfig interface {
	GetAppName() string
	GetRedisAddr() string
	GetEnv() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Librus Login")
}

// GetRedisAddr returns the address of the redis credential store, or
// "" when credentials should stay in process memory.
func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisVar, "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
