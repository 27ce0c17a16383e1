package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configはアプリ全体の設定
type Config struct {
	Port     string // サーバーポート（8080）
	GoEnv    string // dev/prod
	LogLevel string

	DatabaseURL      string // あれば最優先
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	TxMaxRetries     int // シリアライズ失敗・デッドロック時の再試行回数

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NSQAddr  string // 空ならログに出すだけ
	NSQTopic string

	AdminJWTSecret    string
	CustomerJWTSecret string
	AdminTokenTTL     time.Duration
	CustomerTokenTTL  time.Duration

	OTPTTL         time.Duration
	OTPMaxAttempts int

	CoalesceWindow time.Duration
	CookieSecure   bool

	// 初期管理者（両方あれば起動時に作る）
	AdminEmail    string
	AdminPassword string
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GO_ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_DB", "storefront")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("DB_TX_MAX_RETRIES", 3)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("NSQ_TOPIC", "storefront.notifications")

	v.SetDefault("ADMIN_TOKEN_TTL", 8*time.Hour)
	v.SetDefault("CUSTOMER_TOKEN_TTL", 7*24*time.Hour)
	v.SetDefault("OTP_TTL", 10*time.Minute)
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("COALESCE_WINDOW", 300*time.Millisecond)
	v.SetDefault("COOKIE_SECURE", true)
}

// Loadは.envと環境変数から読む
func Load() (Config, error) {
	//.envは無くてもよい
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return FromViper(v)
}

// LoadDatabaseはマイグレーション用。DB以外の必須チェックはしない
func LoadDatabase() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	cfg := read(v)
	if cfg.DatabaseURL == "" && cfg.PostgresHost == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or POSTGRES_HOST is required")
	}
	return cfg, nil
}

func read(v *viper.Viper) Config {
	return Config{
		Port:     v.GetString("PORT"),
		GoEnv:    v.GetString("GO_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),

		DatabaseURL:      v.GetString("DATABASE_URL"),
		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetInt("POSTGRES_PORT"),
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),
		TxMaxRetries:     v.GetInt("DB_TX_MAX_RETRIES"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		NSQAddr:  v.GetString("NSQ_ADDR"),
		NSQTopic: v.GetString("NSQ_TOPIC"),

		AdminJWTSecret:    v.GetString("ADMIN_JWT_SECRET"),
		CustomerJWTSecret: v.GetString("CUSTOMER_JWT_SECRET"),
		AdminTokenTTL:     v.GetDuration("ADMIN_TOKEN_TTL"),
		CustomerTokenTTL:  v.GetDuration("CUSTOMER_TOKEN_TTL"),

		OTPTTL:         v.GetDuration("OTP_TTL"),
		OTPMaxAttempts: v.GetInt("OTP_MAX_ATTEMPTS"),

		CoalesceWindow: v.GetDuration("COALESCE_WINDOW"),
		CookieSecure:   v.GetBool("COOKIE_SECURE"),

		AdminEmail:    strings.TrimSpace(v.GetString("ADMIN_EMAIL")),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
	}
}

// FromViperはテストから値を差し込むために分けている
func FromViper(v *viper.Viper) (Config, error) {
	cfg := read(v)

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.AdminJWTSecret == "" {
		return Config{}, fmt.Errorf("ADMIN_JWT_SECRET is required")
	}
	if cfg.CustomerJWTSecret == "" {
		return Config{}, fmt.Errorf("CUSTOMER_JWT_SECRET is required")
	}
	if cfg.AdminJWTSecret == cfg.CustomerJWTSecret {
		return Config{}, fmt.Errorf("ADMIN_JWT_SECRET and CUSTOMER_JWT_SECRET must differ")
	}
	if cfg.DatabaseURL == "" && cfg.PostgresHost == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or POSTGRES_HOST is required")
	}
	if cfg.AdminTokenTTL <= 0 || cfg.CustomerTokenTTL <= 0 {
		return Config{}, fmt.Errorf("token ttl must be positive")
	}
	if cfg.OTPTTL <= 0 {
		return Config{}, fmt.Errorf("OTP_TTL must be positive")
	}
	if cfg.OTPMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	if cfg.CoalesceWindow <= 0 {
		return Config{}, fmt.Errorf("COALESCE_WINDOW must be positive")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return Config{}, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

// DSNはgorm(pgx)用の接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}
