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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Production   ProductionConfig
	Maintenance  MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LASTLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"LASTLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LASTLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LASTLINE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"LASTLINE_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"LASTLINE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LASTLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"LASTLINE_DB_DSN"`
	Driver     string `envconfig:"LASTLINE_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"LASTLINE_DB_SQLITE_PATH" default:"lastline.db"`

	LegacyHost     string `envconfig:"LASTLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"LASTLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LASTLINE_DB_USER"`
	LegacyPassword string `envconfig:"LASTLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LASTLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LASTLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LASTLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LASTLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LASTLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LASTLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"LASTLINE_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

// RedisConfig is optional: with neither URL nor Address set the API falls back
// to in-process submission locks and skips idempotency replay.
type RedisConfig struct {
	URL          string        `envconfig:"LASTLINE_REDIS_URL"`
	Address      string        `envconfig:"LASTLINE_REDIS_ADDR"`
	Password     string        `envconfig:"LASTLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LASTLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LASTLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LASTLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LASTLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LASTLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LASTLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LASTLINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LASTLINE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LASTLINE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LASTLINE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LASTLINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RequisitionTopic string `envconfig:"LASTLINE_PUBSUB_REQUISITION_TOPIC" default:"ll-requisition-events"`
	AllocationTopic  string `envconfig:"LASTLINE_PUBSUB_ALLOCATION_TOPIC" default:"ll-allocation-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LASTLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LASTLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LASTLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type ProductionConfig struct {
	SubmissionLockTTL time.Duration `envconfig:"LASTLINE_SUBMISSION_LOCK_TTL" default:"30s"`
	IdempotencyTTL    time.Duration `envconfig:"LASTLINE_IDEMPOTENCY_TTL" default:"24h"`
}

type MaintenanceConfig struct {
	Interval            time.Duration `envconfig:"LASTLINE_MAINTENANCE_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"LASTLINE_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
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
