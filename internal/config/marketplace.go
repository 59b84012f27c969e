package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MarketplaceConfig holds the settlement knobs operators tune at runtime.
type MarketplaceConfig struct {
	// FeeRate is applied to the profit over the starting price, not the
	// full captured amount.
	FeeRate float64 `mapstructure:"feeRate"`
	// VideoTokenTTLHours bounds a winner's recording privilege.
	VideoTokenTTLHours int `mapstructure:"videoTokenTTLHours"`
	// MaxRetakes is the recording retake allowance granted per token.
	MaxRetakes int `mapstructure:"maxRetakes"`
}

func DefaultMarketplaceConfig() MarketplaceConfig {
	return MarketplaceConfig{
		FeeRate:            0.25,
		VideoTokenTTLHours: 24,
		MaxRetakes:         1,
	}
}

func (c MarketplaceConfig) VideoTokenTTL() time.Duration {
	return time.Duration(c.VideoTokenTTLHours) * time.Hour
}

type MarketplaceConfigHolder struct {
	current atomic.Value // holds MarketplaceConfig
}

func NewMarketplaceConfigHolder() (*MarketplaceConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("marketplace")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/glamlot/config") // Volume-mounted config
	v.AddConfigPath("/etc/glamlot")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("GLAMLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultMarketplaceConfig()
		v.SetDefault("marketplace.feeRate", defaults.FeeRate)
		v.SetDefault("marketplace.videoTokenTTLHours", defaults.VideoTokenTTLHours)
		v.SetDefault("marketplace.maxRetakes", defaults.MaxRetakes)
	}

	var cfg MarketplaceConfig
	if err := v.UnmarshalKey("marketplace", &cfg); err != nil {
		return nil, err
	}
	if err := validateMarketplaceConfig(cfg); err != nil {
		return nil, err
	}

	holder := &MarketplaceConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MarketplaceConfig
		if err := v.UnmarshalKey("marketplace", &updated); err != nil {
			log.Printf("[marketplace-config] reload failed: %v", err)
			return
		}
		if err := validateMarketplaceConfig(updated); err != nil {
			log.Printf("[marketplace-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[marketplace-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticMarketplaceConfigHolder returns a holder pinned to cfg, for tests.
func NewStaticMarketplaceConfigHolder(cfg MarketplaceConfig) *MarketplaceConfigHolder {
	holder := &MarketplaceConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *MarketplaceConfigHolder) Get() MarketplaceConfig {
	return h.current.Load().(MarketplaceConfig)
}

func validateMarketplaceConfig(cfg MarketplaceConfig) error {
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return errors.New("marketplace.feeRate must be in [0, 1)")
	}
	if cfg.VideoTokenTTLHours <= 0 {
		return errors.New("marketplace.videoTokenTTLHours must be positive")
	}
	if cfg.MaxRetakes < 0 {
		return errors.New("marketplace.maxRetakes cannot be negative")
	}
	return nil
}
