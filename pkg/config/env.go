package config

const (
	EnvPrefix = "RAVEWEAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "RAVEWEAR_APP_ENV"
	EnvPort     = "RAVEWEAR_APP_PORT"
	EnvLogLevel = "RAVEWEAR_LOG_LEVEL"

	EnvDBDSN  = "RAVEWEAR_DB_DSN"
	EnvDBHost = "RAVEWEAR_DB_HOST"
	EnvDBUser = "RAVEWEAR_DB_USER"
	EnvDBName = "RAVEWEAR_DB_NAME"

	EnvRedisURL = "RAVEWEAR_REDIS_URL"

	EnvWCStoreURL       = "RAVEWEAR_WC_STORE_URL"
	EnvWCConsumerKey    = "RAVEWEAR_WC_CONSUMER_KEY"
	EnvWCConsumerSecret = "RAVEWEAR_WC_CONSUMER_SECRET"
	EnvWCWebhookSecret  = "RAVEWEAR_WC_WEBHOOK_SECRET"

	EnvStripeAPIKey = "RAVEWEAR_STRIPE_API_KEY"
	EnvStripeSecret = "RAVEWEAR_STRIPE_SECRET"

	EnvCartTokenSecret = "RAVEWEAR_CART_TOKEN_SECRET"
	EnvCheckoutOrphan  = "RAVEWEAR_CHECKOUT_ORPHAN_TTL"
	EnvCORSOrigins     = "RAVEWEAR_CORS_ALLOWED_ORIGINS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
