package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Announcers.
const (
	AnnouncerLog   = "log"
	AnnouncerRedis = "redis"
	AnnouncerAMQP  = "amqp"
	AnnouncerNone  = "none"
)

// App is the whole runtime configuration, read from LUCKYDRAW_* variables.
type App struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	EventName string `envconfig:"EVENT_NAME" default:"Year End Party"`

	// Pool bounds are fixed for the lifetime of an event.
	MinNumber int `envconfig:"MIN_NUMBER" default:"1"`
	MaxNumber int `envconfig:"MAX_NUMBER" default:"999"`

	StoreDriver string `envconfig:"STORE" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"luckydraw.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	TxTimeout     time.Duration `envconfig:"TX_TIMEOUT" default:"5s"`
	MaxTxAttempts int           `envconfig:"MAX_TX_ATTEMPTS" default:"5"`

	Announcer       string        `envconfig:"ANNOUNCER" default:"log"`
	AnnounceTimeout time.Duration `envconfig:"ANNOUNCE_TIMEOUT" default:"2s"`
	RedisURL        string        `envconfig:"REDIS_URL"`
	RedisChannel    string        `envconfig:"REDIS_CHANNEL" default:"luckydraw.events"`
	AMQPURL         string        `envconfig:"AMQP_URL"`
	AMQPExchange    string        `envconfig:"AMQP_EXCHANGE" default:"luckydraw.exchange"`

	// Operator login. AdminPasswordHash is a bcrypt hash.
	AdminEmail        string        `envconfig:"ADMIN_EMAIL"`
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	JWTTTL            time.Duration `envconfig:"JWT_TTL" default:"12h"`

	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	LogVerbose   bool   `envconfig:"LOG_VERBOSE" default:"false"`
}

// Load reads an optional .env file and then the environment.
func Load() (App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return App{}, fmt.Errorf("load .env: %w", err)
	}
	var c App
	if err := envconfig.Process("luckydraw", &c); err != nil {
		return App{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return App{}, err
	}
	return c, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c App) Validate() error {
	if c.MinNumber < 1 || c.MaxNumber < c.MinNumber {
		return fmt.Errorf("number pool [%d, %d] is invalid: need 1 <= min <= max", c.MinNumber, c.MaxNumber)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("LUCKYDRAW_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("LUCKYDRAW_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.StoreDriver)
	}
	switch c.Announcer {
	case AnnouncerLog, AnnouncerNone:
	case AnnouncerRedis:
		if c.RedisURL == "" {
			return errors.New("LUCKYDRAW_REDIS_URL is required for the redis announcer")
		}
	case AnnouncerAMQP:
		if c.AMQPURL == "" {
			return errors.New("LUCKYDRAW_AMQP_URL is required for the amqp announcer")
		}
	default:
		return fmt.Errorf("unknown announcer %q", c.Announcer)
	}
	if c.MaxTxAttempts < 1 {
		return errors.New("LUCKYDRAW_MAX_TX_ATTEMPTS must be at least 1")
	}
	if c.TxTimeout <= 0 {
		return errors.New("LUCKYDRAW_TX_TIMEOUT must be positive")
	}
	if c.AnnounceTimeout <= 0 {
		return errors.New("LUCKYDRAW_ANNOUNCE_TIMEOUT must be positive")
	}
	return nil
}

// OperatorEnabled reports whether operator login is configured.
func (c App) OperatorEnabled() bool {
	return c.AdminEmail != "" && c.AdminPasswordHash != "" && c.JWTSecret != ""
}
