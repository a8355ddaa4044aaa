package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type StorageBackend string

const (
	StorageFile     StorageBackend = "file"
	StorageRedis    StorageBackend = "redis"
	StoragePostgres StorageBackend = "postgres"
)

func ProvideConfig() Config {
	config := Config{
		APIBaseURL:      getEnvOrDefault("API_BASE_URL", "http://localhost:8080/api"),
		RequestTimeout:  time.Duration(getEnvAsIntOrDefault("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		RefreshInterval: time.Duration(getEnvAsIntOrDefault("REFRESH_INTERVAL_SECONDS", 30)) * time.Second,
		StorageBackend:  StorageBackend(getEnvOrDefault("STORAGE_BACKEND", string(StorageFile))),
		StateDir:        getEnvOrDefault("STATE_DIR", defaultStateDir()),
		AgeIdentity:     os.Getenv("AGE_IDENTITY"),
		LogPretty:       getEnvOrDefault("LOG_PRETTY", "false") == "true",
	}

	switch config.StorageBackend {
	case StorageFile:
	case StorageRedis:
		config.Redis = Redis{
			Host: requireEnv("REDIS_HOST"),
			Port: requireEnvAsInt("REDIS_PORT"),
		}
	case StoragePostgres:
		config.Postgresql = Postgresql{
			Host:         requireEnv("DATABASE_HOST"),
			Port:         requireEnvAsInt("DATABASE_PORT"),
			Username:     requireEnv("DATABASE_USERNAME"),
			Password:     requireEnv("DATABASE_PASSWORD"),
			DatabaseName: requireEnv("DATABASE_NAME"),
		}
	default:
		log.Fatalf("Unsupported storage backend: %s\n", config.StorageBackend)
	}

	return config
}

type Config struct {
	APIBaseURL      string
	RequestTimeout  time.Duration
	RefreshInterval time.Duration
	StorageBackend  StorageBackend
	StateDir        string
	AgeIdentity     string
	LogPretty       bool
	Redis           Redis
	Postgresql      Postgresql
}

type Redis struct {
	Host string
	Port int
}

type Postgresql struct {
	Host         string
	Port         int
	Username     string
	Password     string
	DatabaseName string
}

func (p Postgresql) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable", p.Host, p.Username, p.Password, p.DatabaseName, p.Port)
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".im-console"
	}
	return dir + "/im-console"
}

func requireEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		log.Fatalf("Can't find environment variable: %s\n", key)
	}
	return value
}

func requireEnvAsInt(key string) int {
	valueStr := requireEnv(key)
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Fatalf("Can't parse value as integer: %s", err.Error())
	}
	return value
}

func getEnvOrDefault(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Can't parse value of %s as integer: %s", key, err.Error())
	}
	return i
}
