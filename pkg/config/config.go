package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "wholestock"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "WHOLESTOCK_DB_DSN"
	EnvDBHost = "WHOLESTOCK_DB_HOST"
	EnvDBUser = "WHOLESTOCK_DB_USER"
	EnvDBName = "WHOLESTOCK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Engine       EngineConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WHOLESTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"WHOLESTOCK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WHOLESTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WHOLESTOCK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WHOLESTOCK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WHOLESTOCK_DB_DSN"`
	Driver string `envconfig:"WHOLESTOCK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WHOLESTOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"WHOLESTOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WHOLESTOCK_DB_USER"`
	LegacyPassword string `envconfig:"WHOLESTOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"WHOLESTOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"WHOLESTOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WHOLESTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WHOLESTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WHOLESTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WHOLESTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WHOLESTOCK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WHOLESTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"WHOLESTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"WHOLESTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WHOLESTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WHOLESTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WHOLESTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WHOLESTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WHOLESTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"WHOLESTOCK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"WHOLESTOCK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"WHOLESTOCK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// EngineConfig holds the settlement engine tunables.
type EngineConfig struct {
	ReservationTTL    time.Duration `envconfig:"WHOLESTOCK_RESERVATION_TTL" default:"30m"`
	BalanceDueDays    int           `envconfig:"WHOLESTOCK_BALANCE_DUE_DAYS" default:"14"`
	WebhookIdemTTL    time.Duration `envconfig:"WHOLESTOCK_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
	CheckoutIdemTTL   time.Duration `envconfig:"WHOLESTOCK_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
	OperationIdemTTL  time.Duration `envconfig:"WHOLESTOCK_OPERATION_IDEMPOTENCY_TTL" default:"24h"`
	WebhookRateLimit  int           `envconfig:"WHOLESTOCK_WEBHOOK_RATE_LIMIT" default:"120"`
	WebhookRateWindow time.Duration `envconfig:"WHOLESTOCK_WEBHOOK_RATE_WINDOW" default:"1m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"WHOLESTOCK_CRON_INTERVAL" default:"5m"`
	LockKey  string        `envconfig:"WHOLESTOCK_CRON_LOCK_KEY" default:"ws:cron:lock"`
	LockTTL  time.Duration `envconfig:"WHOLESTOCK_CRON_LOCK_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"WHOLESTOCK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"WHOLESTOCK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WHOLESTOCK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"WHOLESTOCK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WHOLESTOCK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"WHOLESTOCK_PUBSUB_ORDERS_TOPIC" default:"ws-order-events"`
	DocumentsTopic           string `envconfig:"WHOLESTOCK_PUBSUB_DOCUMENTS_TOPIC" default:"ws-document-commands"`
	NotificationTopic        string `envconfig:"WHOLESTOCK_PUBSUB_NOTIFICATION_TOPIC" default:"ws-notification-events"`
	WalletTopic              string `envconfig:"WHOLESTOCK_PUBSUB_WALLET_TOPIC" default:"ws-wallet-events"`
	OrdersSubscription       string `envconfig:"WHOLESTOCK_PUBSUB_ORDERS_SUBSCRIPTION"`
	NotificationSubscription string `envconfig:"WHOLESTOCK_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WHOLESTOCK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WHOLESTOCK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WHOLESTOCK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
