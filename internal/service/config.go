// internal/service/config.go
package service

import (
	"log"

	"github.com/spf13/viper"
)

// ExchangeConfig holds the exchange connection endpoints.
type ExchangeConfig struct {
	Name    string
	RESTURL string
	WSURL   string
}

// FeedConfig holds the per-feed parameters.
type FeedConfig struct {
	TradingPair string // e.g. "BTC-USDT"
	Interval    string // e.g. "1m"
	MaxRecords  int    // candle buffer capacity
}

type Config struct {
	Exchange ExchangeConfig `mapstructure:"Exchange"`
	Feed     FeedConfig     `mapstructure:"Feed"`
}

// GlobalConfig stores the loaded configuration.
var GlobalConfig Config

// LoadConfig reads and parses the config file.
func LoadConfig(configPath string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)

	viper.SetDefault("Exchange.Name", "binance")
	viper.SetDefault("Exchange.RESTURL", "https://api.binance.com")
	viper.SetDefault("Exchange.WSURL", "wss://stream.binance.com:9443/ws")
	viper.SetDefault("Feed.Interval", "1m")
	viper.SetDefault("Feed.MaxRecords", 150)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("Config file not found: %s", err)
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode config into struct: %s", err)
	}

	return &GlobalConfig
}
