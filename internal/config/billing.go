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

// BillingConfig tunes the charge and ledger rules that operators may change
// without a redeploy.
type BillingConfig struct {
	Currency string `mapstructure:"currency"`
	// EditGraceWindow bounds how long after insertion the business date of a
	// transaction may still be changed.
	EditGraceWindow time.Duration `mapstructure:"editGraceWindow"`
	// SplitTolerance is the allowed deviation of the percentage sum from 100.
	SplitTolerance     float64       `mapstructure:"splitTolerance"`
	DescriptionLayout  string        `mapstructure:"descriptionLayout"`
	FlightLockTTL      time.Duration `mapstructure:"flightLockTTL"`
	ReversalPrefix     string        `mapstructure:"reversalPrefix"`
	MaxBatchChargeSize int           `mapstructure:"maxBatchChargeSize"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:           "EUR",
		EditGraceWindow:    time.Hour,
		SplitTolerance:     0.01,
		DescriptionLayout:  "02.01.2006 15:04",
		FlightLockTTL:      30 * time.Second,
		ReversalPrefix:     "REVERSAL: ",
		MaxBatchChargeSize: 500,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder pinned to cfg.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/flightclub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLIGHTCLUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.editGraceWindow", defaults.EditGraceWindow)
	v.SetDefault("billing.splitTolerance", defaults.SplitTolerance)
	v.SetDefault("billing.descriptionLayout", defaults.DescriptionLayout)
	v.SetDefault("billing.flightLockTTL", defaults.FlightLockTTL)
	v.SetDefault("billing.reversalPrefix", defaults.ReversalPrefix)
	v.SetDefault("billing.maxBatchChargeSize", defaults.MaxBatchChargeSize)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	cfg = withDefaults(cfg)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		updated = withDefaults(updated)
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Get returns the active billing config; a zero holder yields defaults.
func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

// withDefaults fills keys missing from a partial billing.yml.
func withDefaults(cfg BillingConfig) BillingConfig {
	defaults := DefaultBillingConfig()
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.EditGraceWindow == 0 {
		cfg.EditGraceWindow = defaults.EditGraceWindow
	}
	if cfg.SplitTolerance == 0 {
		cfg.SplitTolerance = defaults.SplitTolerance
	}
	if strings.TrimSpace(cfg.DescriptionLayout) == "" {
		cfg.DescriptionLayout = defaults.DescriptionLayout
	}
	if cfg.FlightLockTTL == 0 {
		cfg.FlightLockTTL = defaults.FlightLockTTL
	}
	if cfg.ReversalPrefix == "" {
		cfg.ReversalPrefix = defaults.ReversalPrefix
	}
	if cfg.MaxBatchChargeSize == 0 {
		cfg.MaxBatchChargeSize = defaults.MaxBatchChargeSize
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	if cfg.EditGraceWindow < 0 {
		return errors.New("billing.editGraceWindow cannot be negative")
	}
	if cfg.SplitTolerance < 0 || cfg.SplitTolerance >= 1 {
		return errors.New("billing.splitTolerance must be within [0, 1)")
	}
	if cfg.FlightLockTTL <= 0 {
		return errors.New("billing.flightLockTTL must be positive")
	}
	if cfg.MaxBatchChargeSize <= 0 {
		return errors.New("billing.maxBatchChargeSize must be positive")
	}
	return nil
}
