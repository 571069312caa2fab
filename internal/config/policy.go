package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	WaiverPrecedenceFirstMatch = "first_match"
	WaiverPrecedenceHighest    = "highest"
)

// AgingBucket groups overdue balances by days past due. A nil MaxDays is open ended.
type AgingBucket struct {
	Label   string `mapstructure:"label" json:"label"`
	MinDays int    `mapstructure:"minDays" json:"min_days"`
	MaxDays *int   `mapstructure:"maxDays" json:"max_days,omitempty"`
}

type RateLimitPolicy struct {
	PerMinute float64 `mapstructure:"perMinute"`
	Burst     int     `mapstructure:"burst"`
}

// Policy is the hot reloadable reconciliation policy read from feeledger.yml.
type Policy struct {
	WaiverPrecedence  string          `mapstructure:"waiverPrecedence"`
	SubmitConcurrency int             `mapstructure:"submitConcurrency"`
	LockTTL           time.Duration   `mapstructure:"lockTTL"`
	PaymentRateLimit  RateLimitPolicy `mapstructure:"paymentRateLimit"`
	AgingBuckets      []AgingBucket   `mapstructure:"agingBuckets"`
}

func DefaultPolicy() Policy {
	return Policy{
		WaiverPrecedence:  WaiverPrecedenceFirstMatch,
		SubmitConcurrency: 4,
		LockTTL:           10 * time.Second,
		PaymentRateLimit: RateLimitPolicy{
			PerMinute: 30,
			Burst:     10,
		},
		AgingBuckets: []AgingBucket{
			{Label: "0-30", MinDays: 0, MaxDays: intPtr(30)},
			{Label: "31-60", MinDays: 31, MaxDays: intPtr(60)},
			{Label: "60+", MinDays: 61, MaxDays: nil},
		},
	}
}

func intPtr(v int) *int { return &v }

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

// NewPolicyHolder reads feeledger.yml from the standard locations and watches it for changes.
func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	return LoadPolicyHolder(log, "/etc/feeledger", ".")
}

func LoadPolicyHolder(log *zap.Logger, paths ...string) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	v := viper.New()
	v.SetConfigName("feeledger")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("FEELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setPolicyDefaults(v)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	cfg, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(cfg)
	if !found {
		log.Info("policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("invalid policy ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	return h.current.Load().(Policy)
}

func setPolicyDefaults(v *viper.Viper) {
	defaults := DefaultPolicy()
	v.SetDefault("reconciliation.waiverPrecedence", defaults.WaiverPrecedence)
	v.SetDefault("reconciliation.submitConcurrency", defaults.SubmitConcurrency)
	v.SetDefault("reconciliation.lockTTL", defaults.LockTTL.String())
	v.SetDefault("reconciliation.paymentRateLimit.perMinute", defaults.PaymentRateLimit.PerMinute)
	v.SetDefault("reconciliation.paymentRateLimit.burst", defaults.PaymentRateLimit.Burst)

	buckets := make([]map[string]any, 0, len(defaults.AgingBuckets))
	for _, bucket := range defaults.AgingBuckets {
		item := map[string]any{"label": bucket.Label, "minDays": bucket.MinDays}
		if bucket.MaxDays != nil {
			item["maxDays"] = *bucket.MaxDays
		}
		buckets = append(buckets, item)
	}
	v.SetDefault("reconciliation.agingBuckets", buckets)
}

func decodePolicy(v *viper.Viper) (Policy, error) {
	// Unmarshal the whole tree so defaults fill keys the file leaves out.
	var root struct {
		Reconciliation Policy `mapstructure:"reconciliation"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return Policy{}, err
	}
	cfg := root.Reconciliation
	cfg.WaiverPrecedence = strings.ToLower(strings.TrimSpace(cfg.WaiverPrecedence))
	if err := validatePolicy(cfg); err != nil {
		return Policy{}, err
	}
	return cfg, nil
}

func validatePolicy(cfg Policy) error {
	switch cfg.WaiverPrecedence {
	case WaiverPrecedenceFirstMatch, WaiverPrecedenceHighest:
	default:
		return fmt.Errorf("reconciliation.waiverPrecedence %q is not supported", cfg.WaiverPrecedence)
	}
	if cfg.SubmitConcurrency <= 0 {
		return errors.New("reconciliation.submitConcurrency must be positive")
	}
	if cfg.LockTTL <= 0 {
		return errors.New("reconciliation.lockTTL must be positive")
	}
	if len(cfg.AgingBuckets) == 0 {
		return errors.New("reconciliation.agingBuckets cannot be empty")
	}
	for _, bucket := range cfg.AgingBuckets {
		if strings.TrimSpace(bucket.Label) == "" {
			return errors.New("reconciliation.agingBuckets label is required")
		}
		if bucket.MaxDays != nil && *bucket.MaxDays < bucket.MinDays {
			return fmt.Errorf("reconciliation.agingBuckets %q has maxDays below minDays", bucket.Label)
		}
	}
	return nil
}
