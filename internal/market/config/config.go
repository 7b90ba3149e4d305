package config

import (
	"errors"
	"strings"

	"github.com/castlemarket/castle-market/internal/market/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config contains application configuration.
type Config struct {
	Server struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	JWT struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"jwt"`
	Seed struct {
		DemoData bool `mapstructure:"demo-data"`
	} `mapstructure:"seed"`
}

// Load reads configs/config.yaml if present and overlays environment
// variables (SERVER_ADDRESS, DB_DSN, JWT_SECRET, SEED_DEMO_DATA).
func Load() (*Config, error) {
	viper.AddConfigPath("./configs")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("db.dsn", "")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("seed.demo-data", false)

	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil {
		if !errors.As(err, &notFound) {
			return nil, err
		}
		logger.Log.Info("no config file found, using env and defaults")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt.secret is required")
	}

	logger.Log.Info("configuration loaded", zap.String("address", cfg.Server.Address))
	return &cfg, nil
}
