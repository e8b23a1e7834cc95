package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Config is the full runtime configuration shared by every binary.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Eventing      EventingConfig
	PayOS         PayOSConfig
	Grouping      GroupingConfig
	Notifications NotificationsConfig
	Bans          BansConfig
	Fees          FeesConfig
	Cron          CronConfig
	RateLimit     RateLimitConfig
}

// Load reads the DORMSHIP_* environment and checks the cross-field rules
// envconfig tags cannot express. All rule violations are reported together.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs error
	if dsn, err := c.DB.resolveDSN(); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		c.DB.DSN = dsn
	}
	if c.Redis.URL == "" && c.Redis.Address == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s or %s is required", EnvRedisURL, EnvRedisAddr))
	}
	if c.Bans.DefaultThreshold <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be positive", EnvBanThreshold))
	}
	if c.RateLimit.Limit <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be positive", EnvRateLimit))
	}
	if c.Fees.BaseFee < 0 || c.Fees.PerKgFee < 0 || c.Fees.FreeWeightKg.IsNegative() {
		errs = multierr.Append(errs, errors.New("fee settings must not be negative"))
	}
	return errs
}

type AppConfig struct {
	Env           string   `envconfig:"DORMSHIP_APP_ENV" required:"true"`
	Port          string   `envconfig:"DORMSHIP_APP_PORT" required:"true"`
	LogLevel      string   `envconfig:"DORMSHIP_LOG_LEVEL" default:"info"`
	LogWarnStack  bool     `envconfig:"DORMSHIP_LOG_WARN_STACK" default:"false"`
	DefaultLocale string   `envconfig:"DORMSHIP_DEFAULT_LOCALE" default:"vi"`
	CORSOrigins   []string `envconfig:"DORMSHIP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"DORMSHIP_DB_DSN"`
	// SlowQuery is the threshold above which statements are logged at warn.
	SlowQuery time.Duration `envconfig:"DORMSHIP_DB_SLOW_QUERY" default:"200ms"`

	// Discrete settings, used only when DSN is empty.
	Host     string `envconfig:"DORMSHIP_DB_HOST"`
	Port     int    `envconfig:"DORMSHIP_DB_PORT" default:"5432"`
	User     string `envconfig:"DORMSHIP_DB_USER"`
	Password string `envconfig:"DORMSHIP_DB_PASSWORD"`
	Name     string `envconfig:"DORMSHIP_DB_NAME"`
	SSLMode  string `envconfig:"DORMSHIP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DORMSHIP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DORMSHIP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DORMSHIP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DORMSHIP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DORMSHIP_REDIS_URL"`
	Address      string        `envconfig:"DORMSHIP_REDIS_ADDR"`
	Password     string        `envconfig:"DORMSHIP_REDIS_PASSWORD"`
	DB           int           `envconfig:"DORMSHIP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DORMSHIP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DORMSHIP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DORMSHIP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DORMSHIP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DORMSHIP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DORMSHIP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DORMSHIP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DORMSHIP_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DORMSHIP_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"DORMSHIP_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"DORMSHIP_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"DORMSHIP_PUBSUB_NOTIFICATION_TOPIC" default:"dormship-notification-events"`
	DomainTopic       string `envconfig:"DORMSHIP_PUBSUB_DOMAIN_TOPIC" default:"dormship-domain-events"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"DORMSHIP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"DORMSHIP_OUTBOX_PUBLISH_POLL" default:"500ms"`
	MaxBackoff   time.Duration `envconfig:"DORMSHIP_OUTBOX_MAX_BACKOFF" default:"10s"`
	MaxAttempts  int           `envconfig:"DORMSHIP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention    time.Duration `envconfig:"DORMSHIP_OUTBOX_RETENTION" default:"720h"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"DORMSHIP_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// PayOSConfig configures the bank-transfer gateway used for order payments.
type PayOSConfig struct {
	ClientID        string `envconfig:"DORMSHIP_PAYOS_CLIENT_ID"`
	APIKey          string `envconfig:"DORMSHIP_PAYOS_API_KEY"`
	ChecksumKey     string `envconfig:"DORMSHIP_PAYOS_CHECKSUM_KEY" required:"true"`
	SentinelCode    int64  `envconfig:"DORMSHIP_PAYOS_SENTINEL_ORDER_CODE" default:"123"`
	ReturnURL       string `envconfig:"DORMSHIP_PAYOS_RETURN_URL"`
	CancelURL       string `envconfig:"DORMSHIP_PAYOS_CANCEL_URL"`
	DescriptionTmpl string `envconfig:"DORMSHIP_PAYOS_DESCRIPTION" default:"DORMSHIP %d"`
}

type GroupingConfig struct {
	BaseURL string        `envconfig:"DORMSHIP_GROUPING_BASE_URL" default:"http://localhost:8090"`
	APIKey  string        `envconfig:"DORMSHIP_GROUPING_API_KEY"`
	Timeout time.Duration `envconfig:"DORMSHIP_GROUPING_TIMEOUT" default:"10s"`
}

type NotificationsConfig struct {
	MaxAttempts int           `envconfig:"DORMSHIP_NOTIFY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"DORMSHIP_NOTIFY_BASE_DELAY" default:"1s"`
	QueueSize   int           `envconfig:"DORMSHIP_NOTIFY_QUEUE_SIZE" default:"1024"`
	Workers     int           `envconfig:"DORMSHIP_NOTIFY_WORKERS" default:"4"`
	Retention   time.Duration `envconfig:"DORMSHIP_NOTIFY_RETENTION" default:"2160h"`
}

type BansConfig struct {
	DefaultThreshold int `envconfig:"DORMSHIP_BAN_DEFAULT_THRESHOLD" default:"3"`
}

// FeesConfig holds shipping fee parameters in VND.
type FeesConfig struct {
	BaseFee      int64           `envconfig:"DORMSHIP_FEE_BASE" default:"10000"`
	PerKgFee     int64           `envconfig:"DORMSHIP_FEE_PER_KG" default:"5000"`
	FreeWeightKg decimal.Decimal `envconfig:"DORMSHIP_FEE_FREE_WEIGHT_KG" default:"1"`
	RoundTo      int64           `envconfig:"DORMSHIP_FEE_ROUND_TO" default:"1000"`
}

// CronConfig sets the scheduler tick, the worker lease and how often each
// retention job comes due.
type CronConfig struct {
	Interval                   time.Duration `envconfig:"DORMSHIP_CRON_INTERVAL" default:"1h"`
	LockTTL                    time.Duration `envconfig:"DORMSHIP_CRON_LOCK_TTL" default:"55m"`
	OutboxRetentionEvery       time.Duration `envconfig:"DORMSHIP_CRON_OUTBOX_RETENTION_EVERY" default:"1h"`
	NotificationRetentionEvery time.Duration `envconfig:"DORMSHIP_CRON_NOTIFICATION_RETENTION_EVERY" default:"24h"`
}

// RateLimitConfig throttles mutating requests per authenticated user.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"DORMSHIP_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"DORMSHIP_RATE_LIMIT_MUTATIONS" default:"30"`
}

// resolveDSN returns DSN, or assembles a postgres URL from the discrete
// settings when DSN is unset.
func (d DBConfig) resolveDSN() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}
	var missing []string
	for env, v := range map[string]string{EnvDBHost: d.Host, EnvDBUser: d.User, EnvDBName: d.Name} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%s is unset and so are %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(d.User),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   d.Name,
	}
	if d.Password != "" {
		dsn.User = url.UserPassword(d.User, d.Password)
	}
	if d.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return dsn.String(), nil
}
