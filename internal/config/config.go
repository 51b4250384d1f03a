package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort string
	DBDriver   string
	DBDSN      string
	ResetDB    bool
	RedisAddr  string
	RedisDB    int
	RedisPass  string
	LogLevel   string

	JWTSecret        string
	JWTIssuer        string
	JWTAudience      string
	JWTExpiryMinutes int
	BcryptCost       int

	SwaggerHost string
}

// Load builds Config from environment with sensible defaults.
// A .env file in the working directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	driver := getEnv("DB_DRIVER", "mysql")
	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DBDriver:         driver,
		DBDSN:            getEnv("DB_DSN", getEnv("MYSQL_DSN", defaultDSN(driver))),
		ResetDB:          os.Getenv("RESET_DB") == "true",
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisPass:        os.Getenv("REDIS_PASSWORD"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		JWTSecret:        getEnv("JWT_SECRET", "change-me"),
		JWTIssuer:        getEnv("JWT_ISSUER", "usertasks"),
		JWTAudience:      getEnv("JWT_AUDIENCE", "usertasks-clients"),
		JWTExpiryMinutes: getEnvInt("JWT_EXPIRY_MINUTES", 60),
		BcryptCost:       getEnvInt("BCRYPT_COST", 10),
		SwaggerHost:      os.Getenv("SWAGGER_HOST"),
	}
}

func defaultDSN(driver string) string {
	switch driver {
	case "postgres":
		return "host=localhost user=postgres password=postgres dbname=usertasks port=5432 sslmode=disable"
	case "sqlite":
		return "usertasks.db"
	default:
		return "user:password@tcp(localhost:3306)/usertasks?charset=utf8mb4&parseTime=True&loc=UTC"
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
