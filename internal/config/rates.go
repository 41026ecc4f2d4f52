package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RateTable maps a subscription tier to the commission percentage of each role.
type RateTable struct {
	Tiers map[string]map[string]float64 `mapstructure:"tiers"`
}

// DefaultRateTable is used when no commission.yml is found.
func DefaultRateTable() RateTable {
	return RateTable{
		Tiers: map[string]map[string]float64{
			"free": {
				"candidate_recruiter": 15,
				"company_recruiter":   10,
				"job_owner":           5,
				"candidate_sourcer":   5,
				"company_sourcer":     5,
			},
			"pro": {
				"candidate_recruiter": 30,
				"company_recruiter":   20,
				"job_owner":           10,
				"candidate_sourcer":   10,
				"company_sourcer":     10,
			},
			"partner": {
				"candidate_recruiter": 35,
				"company_recruiter":   25,
				"job_owner":           10,
				"candidate_sourcer":   10,
				"company_sourcer":     10,
			},
		},
	}
}

// Rate returns the percentage for role within tier.
func (t RateTable) Rate(tier, role string) (decimal.Decimal, bool) {
	roles, ok := t.Tiers[strings.ToLower(strings.TrimSpace(tier))]
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := roles[role]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(rate).Round(2), true
}

type RateTableHolder struct {
	current atomic.Value // holds RateTable
}

func NewRateTableHolder(cfg Config, log *zap.Logger) (*RateTableHolder, error) {
	log = log.Named("config.rates")
	v := viper.New()

	if cfg.Rates.Path != "" {
		v.SetConfigFile(cfg.Rates.Path)
	} else {
		v.SetConfigName("commission")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/placementpay")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PLACEMENTPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	table := DefaultRateTable()
	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}
	if fromFile {
		var loaded RateTable
		if err := v.UnmarshalKey("commission", &loaded); err != nil {
			return nil, err
		}
		table = normalizeRateTable(loaded)
	}
	if err := ValidateRateTable(table); err != nil {
		return nil, err
	}

	holder := &RateTableHolder{}
	holder.current.Store(table)

	if !fromFile {
		log.Info("commission rate table not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RateTable
		if err := v.UnmarshalKey("commission", &updated); err != nil {
			log.Warn("rate table reload failed", zap.Error(err))
			return
		}
		updated = normalizeRateTable(updated)
		if err := ValidateRateTable(updated); err != nil {
			log.Warn("invalid rate table ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("rate table reloaded", zap.String("file", filepath.Base(e.Name)))
	})

	return holder, nil
}

// NewStaticRateTableHolder wraps a fixed table, mostly for tests.
func NewStaticRateTableHolder(table RateTable) *RateTableHolder {
	holder := &RateTableHolder{}
	holder.current.Store(normalizeRateTable(table))
	return holder
}

func (h *RateTableHolder) Get() RateTable {
	return h.current.Load().(RateTable)
}

func (h *RateTableHolder) Rate(tier, role string) (decimal.Decimal, bool) {
	return h.Get().Rate(tier, role)
}

// ValidateRateTable rejects empty tables, rates outside [0,100] and tiers summing above 100.
func ValidateRateTable(table RateTable) error {
	if len(table.Tiers) == 0 {
		return errors.New("commission.tiers cannot be empty")
	}
	for tier, roles := range table.Tiers {
		sum := decimal.Zero
		for role, rate := range roles {
			if rate < 0 || rate > 100 {
				return fmt.Errorf("commission.tiers.%s.%s must be within [0,100]", tier, role)
			}
			sum = sum.Add(decimal.NewFromFloat(rate))
		}
		if sum.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("commission.tiers.%s sums to %s, above 100", tier, sum.String())
		}
	}
	return nil
}

func normalizeRateTable(table RateTable) RateTable {
	out := RateTable{Tiers: make(map[string]map[string]float64, len(table.Tiers))}
	for tier, roles := range table.Tiers {
		key := strings.ToLower(strings.TrimSpace(tier))
		normalized := make(map[string]float64, len(roles))
		for role, rate := range roles {
			normalized[strings.ToLower(strings.TrimSpace(role))] = rate
		}
		out.Tiers[key] = normalized
	}
	return out
}
