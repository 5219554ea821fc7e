package config

// EnvPrefix is handed to envconfig; the struct tags already carry full names.
const EnvPrefix = "LASTLINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "LASTLINE_APP_ENV"
	EnvPort     = "LASTLINE_APP_PORT"
	EnvLogLevel = "LASTLINE_LOG_LEVEL"

	EnvDBDSN    = "LASTLINE_DB_DSN"
	EnvDBDriver = "LASTLINE_DB_DRIVER"
	EnvDBHost   = "LASTLINE_DB_HOST"
	EnvDBUser   = "LASTLINE_DB_USER"
	EnvDBName   = "LASTLINE_DB_NAME"

	EnvRedisURL  = "LASTLINE_REDIS_URL"
	EnvUseSQLite = "LASTLINE_USE_SQLITE"

	EnvGCPProjectID        = "LASTLINE_GCP_PROJECT_ID"
	EnvPubSubRequisition   = "LASTLINE_PUBSUB_REQUISITION_TOPIC"
	EnvSubmissionLockTTL   = "LASTLINE_SUBMISSION_LOCK_TTL"
	EnvOutboxMaxAttempts   = "LASTLINE_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxPublishPollMS = "LASTLINE_OUTBOX_PUBLISH_POLL_MS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
