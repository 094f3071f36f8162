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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Licensing    LicensingConfig
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
	Env          string `envconfig:"TESTBENCH_APP_ENV" required:"true"`
	Port         string `envconfig:"TESTBENCH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TESTBENCH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TESTBENCH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TESTBENCH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TESTBENCH_DB_DSN"`
	Driver string `envconfig:"TESTBENCH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TESTBENCH_DB_HOST"`
	LegacyPort     int    `envconfig:"TESTBENCH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TESTBENCH_DB_USER"`
	LegacyPassword string `envconfig:"TESTBENCH_DB_PASSWORD"`
	LegacyName     string `envconfig:"TESTBENCH_DB_NAME"`
	LegacySSLMode  string `envconfig:"TESTBENCH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TESTBENCH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TESTBENCH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TESTBENCH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TESTBENCH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TESTBENCH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TESTBENCH_REDIS_ADDR"`
	Password     string        `envconfig:"TESTBENCH_REDIS_PASSWORD"`
	DB           int           `envconfig:"TESTBENCH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TESTBENCH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TESTBENCH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TESTBENCH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TESTBENCH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TESTBENCH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TESTBENCH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TESTBENCH_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TESTBENCH_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TESTBENCH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TESTBENCH_AUTO_MIGRATE" default:"false"`
}

// LicensingConfig carries tunables of the licensing core.
type LicensingConfig struct {
	// RetestWindow is how long a chargeable test covers free retests of the
	// same device.
	RetestWindow time.Duration `envconfig:"TESTBENCH_LICENSING_RETEST_WINDOW" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TESTBENCH_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TESTBENCH_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TESTBENCH_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LicensingTopic        string `envconfig:"TESTBENCH_PUBSUB_LICENSING_TOPIC" default:"tb-licensing-events"`
	LicensingSubscription string `envconfig:"TESTBENCH_PUBSUB_LICENSING_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TESTBENCH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TESTBENCH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TESTBENCH_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
