package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
	StorageDriverMongo    = "mongo"

	OTPStoreMemory = "memory"
	OTPStoreRedis  = "redis"
)

// HS256の鍵として最低限必要な長さ
const minJWTSecretLen = 32

var ErrInvalidConfig = errors.New("invalid config")

// Configはアプリ全体の設定
type Config struct {
	Env      string `yaml:"env" env:"APP_ENV" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	OTP      OTPConfig      `yaml:"otp"`
	Redis    RedisConfig    `yaml:"redis"`
	Twilio   TwilioConfig   `yaml:"twilio"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`

	//1リクエストあたりの処理時間上限（DB待ちも含む）
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"5s"`

	//TLS以外のリクエストを426で拒否する
	RequireTLS bool `yaml:"require_tls" env:"HTTP_REQUIRE_TLS" env-default:"false"`

	//IPごとの/auth呼び出し上限
	AuthRateLimit  int           `yaml:"auth_rate_limit" env:"AUTH_RATE_LIMIT" env-default:"100"`
	AuthRateWindow time.Duration `yaml:"auth_rate_window" env:"AUTH_RATE_WINDOW" env-default:"15m"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`

	// DATABASE_URL があれば最優先で使う
	URL string `yaml:"url" env:"DATABASE_URL"`

	PostgresHost     string `yaml:"postgres_host" env:"POSTGRES_HOST" env-default:"localhost"`
	PostgresPort     int    `yaml:"postgres_port" env:"POSTGRES_PORT" env-default:"5432"`
	PostgresUser     string `yaml:"postgres_user" env:"POSTGRES_USER" env-default:"postgres"`
	PostgresPassword string `yaml:"postgres_password" env:"POSTGRES_PASSWORD" env-default:"postgres"`
	PostgresDB       string `yaml:"postgres_db" env:"POSTGRES_DB" env-default:"medride"`
	PostgresSSLMode  string `yaml:"postgres_sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`

	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"medride.db"`

	MaxOpenConns int `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`

	MongoURI      string `yaml:"mongo_uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017/?replicaSet=rs0"`
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE" env-default:"medride"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	JWTIssuer       string        `yaml:"jwt_issuer" env:"JWT_ISSUER" env-default:"medride"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"24h"`
	BcryptCost      int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"12"`

	//監査ログの本文HMAC鍵。空ならJWT_SECRETを使う
	AuditSecret string `yaml:"audit_secret" env:"AUDIT_SECRET"`
}

type OTPConfig struct {
	TTL   time.Duration `yaml:"ttl" env:"OTP_TTL" env-default:"10m"`
	Store string        `yaml:"store" env:"OTP_STORE" env-default:"memory"`

	//空ならJWT_SECRETを使う
	Secret string `yaml:"secret" env:"OTP_SECRET"`

	DispatchTimeout time.Duration `yaml:"dispatch_timeout" env:"OTP_DISPATCH_TIMEOUT" env-default:"10s"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// 3つ揃っていなければSMSは送らない
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" env:"TWILIO_AUTH_TOKEN"`
	FromPhone  string `yaml:"from_phone" env:"TWILIO_FROM_PHONE"`
}

func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromPhone != ""
}

// Loadは設定を読み込む。
// CONFIG_PATHがあればyamlを読み、環境変数で上書きする。
func Load() (Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// 値の組み合わせをチェック
func (c Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("%w: unknown APP_ENV %q", ErrInvalidConfig, c.Env)
	}

	switch c.Database.Driver {
	case StorageDriverPostgres, StorageDriverSQLite, StorageDriverMongo:
	default:
		return fmt.Errorf("%w: unknown STORAGE_DRIVER %q", ErrInvalidConfig, c.Database.Driver)
	}

	switch c.OTP.Store {
	case OTPStoreMemory, OTPStoreRedis:
	default:
		return fmt.Errorf("%w: unknown OTP_STORE %q", ErrInvalidConfig, c.OTP.Store)
	}

	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d bytes", ErrInvalidConfig, minJWTSecretLen)
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", ErrInvalidConfig)
	}
	if c.OTP.TTL <= 0 {
		return fmt.Errorf("%w: OTP_TTL must be positive", ErrInvalidConfig)
	}
	if c.HTTP.AuthRateLimit <= 0 || c.HTTP.AuthRateWindow <= 0 {
		return fmt.Errorf("%w: auth rate limit must be positive", ErrInvalidConfig)
	}

	return nil
}

// OTPハッシュ用の鍵
func (c Config) OTPSecret() string {
	if c.OTP.Secret != "" {
		return c.OTP.Secret
	}
	return c.Auth.JWTSecret
}

// 監査ログの本文ハッシュ用の鍵
func (c Config) AuditSecret() string {
	if c.Auth.AuditSecret != "" {
		return c.Auth.AuditSecret
	}
	return c.Auth.JWTSecret
}

// ログに出してはいけない値
func (c Config) Secrets() []string {
	secrets := []string{c.Auth.JWTSecret, c.Auth.AuditSecret, c.OTP.Secret, c.Redis.Password, c.Twilio.AuthToken}

	out := secrets[:0]
	for _, s := range secrets {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// postgresのDSN
func (c DatabaseConfig) PostgresDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}
