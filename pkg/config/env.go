package config

const (
	EnvPrefix = "STOCKROOM"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv      = "STOCKROOM_APP_ENV"
	EnvPort        = "STOCKROOM_APP_PORT"
	EnvLogLevel    = "STOCKROOM_LOG_LEVEL"
	EnvAppTimezone = "STOCKROOM_APP_TIMEZONE"

	EnvDBDSN      = "STOCKROOM_DB_DSN"
	EnvDBDriver   = "STOCKROOM_DB_DRIVER"
	EnvDBHost     = "STOCKROOM_DB_HOST"
	EnvDBPort     = "STOCKROOM_DB_PORT"
	EnvDBUser     = "STOCKROOM_DB_USER"
	EnvDBPassword = "STOCKROOM_DB_PASSWORD"
	EnvDBName     = "STOCKROOM_DB_NAME"

	EnvRedisURL = "STOCKROOM_REDIS_URL"

	EnvJWTSecret              = "STOCKROOM_JWT_SECRET"
	EnvJWTIssuer              = "STOCKROOM_JWT_ISSUER"
	EnvJWTExpMins             = "STOCKROOM_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "STOCKROOM_REFRESH_TOKEN_TTL_MINUTES"

	EnvUseSQLite   = "STOCKROOM_USE_SQLITE"
	EnvAutoMigrate = "STOCKROOM_AUTO_MIGRATE"

	EnvStorageEndpoint  = "STOCKROOM_STORAGE_ENDPOINT"
	EnvStorageAccessKey = "STOCKROOM_STORAGE_ACCESS_KEY"
	EnvStorageSecretKey = "STOCKROOM_STORAGE_SECRET_KEY"
	EnvStorageBucket    = "STOCKROOM_STORAGE_BUCKET"

	EnvMaxUploadMB       = "STOCKROOM_MAX_UPLOAD_MB"
	EnvLowStockThreshold = "STOCKROOM_LOW_STOCK_THRESHOLD"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
