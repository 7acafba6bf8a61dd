package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Booking  BookingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// DSN builds the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

type BookingConfig struct {
	Location    *time.Location
	OpeningTime domain.TimeOfDay
	LastTime    domain.TimeOfDay
	// RateLimit is the number of bookings one user may create per minute.
	RateLimit  int
	TxAttempts int
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	requestTimeout, err := time.ParseDuration(stringEnv("REQUEST_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid REQUEST_TIMEOUT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host:           stringEnv("SERVER_HOST", "localhost"),
		Port:           serverPort,
		RequestTimeout: requestTimeout,
	}

	postgresPort, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresMaxConns, err := intEnv("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     stringEnv("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  stringEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(postgresMaxConns),
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     stringEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	bookingCfg, err := newBookingConfig()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Booking:  bookingCfg,
	}, nil
}

func newBookingConfig() (BookingConfig, error) {
	tz := stringEnv("BOOKING_TIMEZONE", "Europe/London")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return BookingConfig{}, fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", tz, err)
	}

	opening, err := domain.ParseTimeOfDay(stringEnv("BOOKING_OPENING_TIME", "11:00"))
	if err != nil {
		return BookingConfig{}, fmt.Errorf("invalid BOOKING_OPENING_TIME: %w", err)
	}

	last, err := domain.ParseTimeOfDay(stringEnv("BOOKING_LAST_TIME", "22:00"))
	if err != nil {
		return BookingConfig{}, fmt.Errorf("invalid BOOKING_LAST_TIME: %w", err)
	}

	if last < opening {
		return BookingConfig{}, fmt.Errorf("BOOKING_LAST_TIME %s is before BOOKING_OPENING_TIME %s", last, opening)
	}

	rateLimit, err := intEnv("BOOKING_RATE_LIMIT", 10)
	if err != nil {
		return BookingConfig{}, err
	}

	attempts, err := intEnv("BOOKING_TX_ATTEMPTS", 3)
	if err != nil {
		return BookingConfig{}, err
	}

	if attempts < 1 {
		return BookingConfig{}, errors.New("BOOKING_TX_ATTEMPTS must be at least 1")
	}

	return BookingConfig{
		Location:    loc,
		OpeningTime: opening,
		LastTime:    last,
		RateLimit:   rateLimit,
		TxAttempts:  attempts,
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}
