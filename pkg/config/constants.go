package config

const (
	EnvPrefix = "DORMSHIP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "DORMSHIP_APP_ENV"
	EnvPort         = "DORMSHIP_APP_PORT"
	EnvDBDSN        = "DORMSHIP_DB_DSN"
	EnvDBHost       = "DORMSHIP_DB_HOST"
	EnvDBUser       = "DORMSHIP_DB_USER"
	EnvDBName       = "DORMSHIP_DB_NAME"
	EnvRedisURL     = "DORMSHIP_REDIS_URL"
	EnvRedisAddr    = "DORMSHIP_REDIS_ADDR"
	EnvJWTSecret    = "DORMSHIP_JWT_SECRET"
	EnvJWTIssuer    = "DORMSHIP_JWT_ISSUER"
	EnvJWTExpMins   = "DORMSHIP_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID = "DORMSHIP_GCP_PROJECT_ID"
	EnvPayOSKey     = "DORMSHIP_PAYOS_CHECKSUM_KEY"
	EnvBanThreshold = "DORMSHIP_BAN_DEFAULT_THRESHOLD"
	EnvGroupingURL  = "DORMSHIP_GROUPING_BASE_URL"
	EnvRateLimit    = "DORMSHIP_RATE_LIMIT_MUTATIONS"
)
