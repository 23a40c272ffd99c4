package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// AppID namespaces all locally persisted state so multiple tenants
	// on one origin do not collide.
	AppID string `mapstructure:"APP_ID"`

	APIBaseURL   string `mapstructure:"API_BASE_URL"`
	WalletOrigin string `mapstructure:"WALLET_ORIGIN"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`

	// StoreDSN selects the on-disk record database (sqlite file path).
	// Empty means in-memory only.
	StoreDSN  string `mapstructure:"STORE_DSN"`
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	HandshakeInterval time.Duration `mapstructure:"HANDSHAKE_INTERVAL"`
	HandshakeTimeout  time.Duration `mapstructure:"HANDSHAKE_TIMEOUT"`

	// CallTimeout bounds a single RPC call after the handshake is
	// established. Zero keeps calls pending indefinitely.
	CallTimeout time.Duration `mapstructure:"CALL_TIMEOUT"`
}

func Load() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("APP_ID", "default")
	viper.SetDefault("API_BASE_URL", "https://id.kayan.dev")
	viper.SetDefault("WALLET_ORIGIN", "*")
	// Empty defaults still register the keys; viper only surfaces env
	// values for keys it knows about.
	viper.SetDefault("STORE_DSN", "")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("HANDSHAKE_INTERVAL", 500*time.Millisecond)
	viper.SetDefault("HANDSHAKE_TIMEOUT", 5*time.Minute)
	viper.SetDefault("CALL_TIMEOUT", time.Duration(0))

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
