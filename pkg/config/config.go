package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Service     ServiceConfig
	DB          DBConfig
	Redis       RedisConfig
	WooCommerce WooCommerceConfig
	Stripe      StripeConfig
	Cache       CacheConfig
	Checkout    CheckoutConfig
	CartSession CartSessionConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Cron        CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.WooCommerce.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RAVEWEAR_APP_ENV" required:"true"`
	Port         string `envconfig:"RAVEWEAR_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"RAVEWEAR_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"RAVEWEAR_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"RAVEWEAR_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"RAVEWEAR_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"RAVEWEAR_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RAVEWEAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RAVEWEAR_DB_DSN"`
	Driver string `envconfig:"RAVEWEAR_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"RAVEWEAR_DB_HOST"`
	Port     int    `envconfig:"RAVEWEAR_DB_PORT" default:"5432"`
	User     string `envconfig:"RAVEWEAR_DB_USER"`
	Password string `envconfig:"RAVEWEAR_DB_PASSWORD"`
	Name     string `envconfig:"RAVEWEAR_DB_NAME"`
	SSLMode  string `envconfig:"RAVEWEAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RAVEWEAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RAVEWEAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RAVEWEAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RAVEWEAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RAVEWEAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RAVEWEAR_REDIS_ADDR"`
	Password     string        `envconfig:"RAVEWEAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"RAVEWEAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RAVEWEAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RAVEWEAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RAVEWEAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RAVEWEAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RAVEWEAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type WooCommerceConfig struct {
	StoreURL       string        `envconfig:"RAVEWEAR_WC_STORE_URL" required:"true"`
	ConsumerKey    string        `envconfig:"RAVEWEAR_WC_CONSUMER_KEY" required:"true"`
	ConsumerSecret string        `envconfig:"RAVEWEAR_WC_CONSUMER_SECRET" required:"true"`
	WebhookSecret  string        `envconfig:"RAVEWEAR_WC_WEBHOOK_SECRET"`
	Timeout        time.Duration `envconfig:"RAVEWEAR_WC_TIMEOUT" default:"30s"`
}

func (w WooCommerceConfig) validate() error {
	u, err := url.Parse(strings.TrimSpace(w.StoreURL))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvWCStoreURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvWCStoreURL)
	}
	return nil
}

type StripeConfig struct {
	APIKey   string `envconfig:"RAVEWEAR_STRIPE_API_KEY"`
	Secret   string `envconfig:"RAVEWEAR_STRIPE_SECRET"`
	Env      string `envconfig:"RAVEWEAR_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"RAVEWEAR_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CacheConfig struct {
	ProductTTL   time.Duration `envconfig:"RAVEWEAR_CACHE_PRODUCT_TTL" default:"5m"`
	VariationTTL time.Duration `envconfig:"RAVEWEAR_CACHE_VARIATION_TTL" default:"5m"`
	OrderTTL     time.Duration `envconfig:"RAVEWEAR_CACHE_ORDER_TTL" default:"1m"`
}

type CheckoutConfig struct {
	SessionTTL      time.Duration `envconfig:"RAVEWEAR_CHECKOUT_SESSION_TTL" default:"1h"`
	LockTTL         time.Duration `envconfig:"RAVEWEAR_CHECKOUT_LOCK_TTL" default:"2m"`
	ActionTimeout   time.Duration `envconfig:"RAVEWEAR_CHECKOUT_ACTION_TIMEOUT" default:"15m"`
	OrphanTTL       time.Duration `envconfig:"RAVEWEAR_CHECKOUT_ORPHAN_TTL" default:"24h"`
	ReturnPath      string        `envconfig:"RAVEWEAR_CHECKOUT_RETURN_PATH" default:"/checkout/confirmation"`
	WebhookEventTTL time.Duration `envconfig:"RAVEWEAR_CHECKOUT_WEBHOOK_EVENT_TTL" default:"72h"`
}

// ReturnURL joins the public storefront URL with the confirmation path used after redirects.
func (c CheckoutConfig) ReturnURL(publicURL string) string {
	base := strings.TrimSuffix(strings.TrimSpace(publicURL), "/")
	path := c.ReturnPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

type CartSessionConfig struct {
	Secret   string        `envconfig:"RAVEWEAR_CART_TOKEN_SECRET" required:"true"`
	Issuer   string        `envconfig:"RAVEWEAR_CART_TOKEN_ISSUER" default:"ravewear"`
	TTL      time.Duration `envconfig:"RAVEWEAR_CART_TOKEN_TTL" default:"720h"`
	StateTTL time.Duration `envconfig:"RAVEWEAR_CART_STATE_TTL" default:"720h"`
	LockTTL  time.Duration `envconfig:"RAVEWEAR_CART_LOCK_TTL" default:"10s"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"RAVEWEAR_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type RateLimitConfig struct {
	Window        time.Duration `envconfig:"RAVEWEAR_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit       int           `envconfig:"RAVEWEAR_RATE_LIMIT_IP" default:"120"`
	SessionLimit  int           `envconfig:"RAVEWEAR_RATE_LIMIT_SESSION" default:"30"`
	CheckoutLimit int           `envconfig:"RAVEWEAR_RATE_LIMIT_CHECKOUT" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"RAVEWEAR_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"RAVEWEAR_CRON_LOCK_TTL" default:"55m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
