package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy carries business rules that operators tune without a redeploy.
type Policy struct {
	Labor LaborPolicy `mapstructure:"labor"`
	Sync  SyncPolicy  `mapstructure:"sync"`
}

type LaborPolicy struct {
	// DailyOvertimeThreshold is the number of hours per entry paid at the regular rate.
	DailyOvertimeThreshold float64 `mapstructure:"dailyOvertimeThreshold"`
	MaxHoursPerEntry       float64 `mapstructure:"maxHoursPerEntry"`
}

type SyncPolicy struct {
	MaxAttempts int `mapstructure:"maxAttempts"`
	BatchSize   int `mapstructure:"batchSize"`
}

func DefaultPolicy() Policy {
	return Policy{
		Labor: LaborPolicy{
			DailyOvertimeThreshold: 8,
			MaxHoursPerEntry:       24,
		},
		Sync: SyncPolicy{
			MaxAttempts: 5,
			BatchSize:   50,
		},
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.Store(p)
	return holder
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/fieldbooks")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FIELDBOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.labor.dailyOvertimeThreshold", defaults.Labor.DailyOvertimeThreshold)
	v.SetDefault("policy.labor.maxHoursPerEntry", defaults.Labor.MaxHoursPerEntry)
	v.SetDefault("policy.sync.maxAttempts", defaults.Sync.MaxAttempts)
	v.SetDefault("policy.sync.batchSize", defaults.Sync.BatchSize)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := DefaultPolicy()
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log := zap.L().Named("config.policy")
		updated := DefaultPolicy()
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

// Store swaps the active policy.
func (h *PolicyHolder) Store(p Policy) {
	h.current.Store(p)
}

func validatePolicy(cfg Policy) error {
	if cfg.Labor.DailyOvertimeThreshold <= 0 {
		return errors.New("policy.labor.dailyOvertimeThreshold must be positive")
	}
	if cfg.Labor.MaxHoursPerEntry < cfg.Labor.DailyOvertimeThreshold {
		return errors.New("policy.labor.maxHoursPerEntry must not be below the overtime threshold")
	}
	if cfg.Sync.MaxAttempts <= 0 {
		return errors.New("policy.sync.maxAttempts must be positive")
	}
	if cfg.Sync.BatchSize <= 0 {
		return errors.New("policy.sync.batchSize must be positive")
	}
	return nil
}
