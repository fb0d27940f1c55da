package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Admin        AdminConfig
	Gate         GateConfig
	Quota        QuotaConfig
	Payments     PaymentsConfig
	Mpesa        MpesaConfig
	Emola        EmolaConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"ALAUDA_APP_ENV" required:"true"`
	Port         string `envconfig:"ALAUDA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ALAUDA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ALAUDA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ALAUDA_DB_DSN"`
	Driver string `envconfig:"ALAUDA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ALAUDA_DB_HOST"`
	LegacyPort     int    `envconfig:"ALAUDA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ALAUDA_DB_USER"`
	LegacyPassword string `envconfig:"ALAUDA_DB_PASSWORD"`
	LegacyName     string `envconfig:"ALAUDA_DB_NAME"`
	LegacySSLMode  string `envconfig:"ALAUDA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ALAUDA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ALAUDA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ALAUDA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ALAUDA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ALAUDA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ALAUDA_REDIS_ADDR"`
	Password     string        `envconfig:"ALAUDA_REDIS_PASSWORD"`
	DB           int           `envconfig:"ALAUDA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ALAUDA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ALAUDA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ALAUDA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ALAUDA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ALAUDA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ALAUDA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ALAUDA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ALAUDA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AdminConfig drives the administrative login surface.
type AdminConfig struct {
	Email        string `envconfig:"ALAUDA_ADMIN_EMAIL" required:"true"`
	PasswordHash string `envconfig:"ALAUDA_ADMIN_PASSWORD_HASH" required:"true"`
}

// GateConfig configures the access gate admission pipeline.
type GateConfig struct {
	TokenHeader   string `envconfig:"ALAUDA_GATE_TOKEN_HEADER" default:"X-API-Key"`
	TokenQueryKey string `envconfig:"ALAUDA_GATE_TOKEN_QUERY" default:"api_key"`
	// PartnerHeaderValue is matched exactly against the partner marker
	// header; presence alone never grants the passthrough.
	PartnerHeader      string `envconfig:"ALAUDA_GATE_PARTNER_HEADER" default:"X-Alauda-Platform"`
	PartnerHeaderValue string `envconfig:"ALAUDA_GATE_PARTNER_VALUE"`
	ConsumeRetries     int    `envconfig:"ALAUDA_GATE_CONSUME_RETRIES" default:"3"`
}

type QuotaConfig struct {
	// Timezone anchors the daily-counter reset at local midnight.
	Timezone string `envconfig:"ALAUDA_QUOTA_TIMEZONE" default:"Africa/Maputo"`
}

type PaymentsConfig struct {
	// PendingTTL is how long a pending payment stays claimable before the
	// expiry sweep cancels it.
	PendingTTL      time.Duration `envconfig:"ALAUDA_PAYMENTS_PENDING_TTL" default:"24h"`
	ProviderTimeout time.Duration `envconfig:"ALAUDA_PAYMENTS_PROVIDER_TIMEOUT" default:"10s"`
}

type MpesaConfig struct {
	WebhookSecret string `envconfig:"ALAUDA_MPESA_WEBHOOK_SECRET"`
}

type EmolaConfig struct {
	WebhookSecret string `envconfig:"ALAUDA_EMOLA_WEBHOOK_SECRET"`
}

type StripeConfig struct {
	Env           string `envconfig:"ALAUDA_STRIPE_ENV" default:"test"`
	SecretKey     string `envconfig:"ALAUDA_STRIPE_SECRET_KEY"`
	SigningSecret string `envconfig:"ALAUDA_STRIPE_SIGNING_SECRET"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken string `envconfig:"ALAUDA_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"ALAUDA_SQUARE_ENV" default:"sandbox"`
}

type CronConfig struct {
	Tick             time.Duration `envconfig:"ALAUDA_CRON_TICK" default:"1m"`
	PendingSweep     time.Duration `envconfig:"ALAUDA_CRON_PENDING_SWEEP" default:"5m"`
	ExpirySweep      time.Duration `envconfig:"ALAUDA_CRON_EXPIRY_SWEEP" default:"1h"`
	UsageRetention   time.Duration `envconfig:"ALAUDA_CRON_USAGE_RETENTION" default:"24h"`
	UsageMaxAge      time.Duration `envconfig:"ALAUDA_USAGE_MAX_AGE" default:"2160h"`
	LockTTL          time.Duration `envconfig:"ALAUDA_CRON_LOCK_TTL" default:"10m"`
	SweepBatchLimit  int           `envconfig:"ALAUDA_CRON_SWEEP_BATCH_LIMIT" default:"250"`
	DisableRedisLock bool          `envconfig:"ALAUDA_CRON_DISABLE_REDIS_LOCK" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ALAUDA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	UsageTopic string `envconfig:"ALAUDA_PUBSUB_USAGE_TOPIC"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ALAUDA_AUTO_MIGRATE" default:"false"`
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
