package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// maps a claim or header value onto a known tier; anything unrecognized is free
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}

// limits applied to every caller on a tier.
// DailyOperationLimit and MonthlyOperationLimit of 0 mean unlimited
type TierPolicy struct {
	RequestsPerWindow     int64    `json:"requests_per_window" validate:"gt=0"`
	WindowSeconds         int      `json:"window_seconds" validate:"gt=0"`
	DailyOperationLimit   int64    `json:"daily_operation_limit" validate:"gte=0"`
	MonthlyOperationLimit int64    `json:"monthly_operation_limit" validate:"gte=0"`
	MaxInputBytes         int64    `json:"max_input_bytes" validate:"gt=0"`
	Features              []string `json:"features" validate:"dive,required"`
}

func (p TierPolicy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// reports whether the daily quota applies to this tier
func (p TierPolicy) HasDailyLimit() bool {
	return p.DailyOperationLimit > 0
}

func (p TierPolicy) HasFeature(feature string) bool {
	if feature == "" {
		return true
	}

	return slices.Contains(p.Features, feature)
}

// immutable tier -> policy table, built once at startup
type Policies struct {
	byTier map[Tier]TierPolicy
}

var validate = validator.New()

// validates and copies the given table. free must be present because
// unknown tiers fall back to it
func NewPolicies(table map[Tier]TierPolicy) (*Policies, error) {
	if _, ok := table[TierFree]; !ok {
		return nil, fmt.Errorf("tier policy for %q is required", TierFree)
	}

	byTier := make(map[Tier]TierPolicy, len(table))

	for tier, policy := range table {
		if err := validate.Struct(policy); err != nil {
			return nil, fmt.Errorf("invalid policy for tier %q: %w", tier, err)
		}

		policy.Features = slices.Clone(policy.Features)
		byTier[tier] = policy
	}

	return &Policies{byTier: byTier}, nil
}

// builds the policy table from environment knobs
func PoliciesFromEnv(env TierEnv) (*Policies, error) {
	return NewPolicies(map[Tier]TierPolicy{
		TierFree: {
			RequestsPerWindow:     env.RateLimitFree,
			WindowSeconds:         env.RateLimitWindowSec,
			DailyOperationLimit:   env.DailyLimitFree,
			MonthlyOperationLimit: env.MonthlyLimitFree,
			MaxInputBytes:         env.MaxInputBytesFree,
			Features:              env.FeaturesFree,
		},
		TierPro: {
			RequestsPerWindow:     env.RateLimitPro,
			WindowSeconds:         env.RateLimitWindowSec,
			DailyOperationLimit:   env.DailyLimitPro,
			MonthlyOperationLimit: env.MonthlyLimitPro,
			MaxInputBytes:         env.MaxInputBytesPro,
			Features:              env.FeaturesPro,
		},
		TierEnterprise: {
			RequestsPerWindow:     env.RateLimitEnterprise,
			WindowSeconds:         env.RateLimitWindowSec,
			DailyOperationLimit:   env.DailyLimitEnterprise,
			MonthlyOperationLimit: env.MonthlyLimitEnterprise,
			MaxInputBytes:         env.MaxInputBytesEnterprise,
			Features:              env.FeaturesEnterprise,
		},
	})
}

// the defaults the service ships with
func DefaultPolicies() *Policies {
	p, err := PoliciesFromEnv(TierEnv{
		RateLimitFree:           5,
		RateLimitPro:            100,
		RateLimitEnterprise:     1000,
		RateLimitWindowSec:      60,
		DailyLimitFree:          10,
		MaxInputBytesFree:       10 << 20,
		MaxInputBytesPro:        100 << 20,
		MaxInputBytesEnterprise: 500 << 20,
		FeaturesFree:            []string{"basic"},
		FeaturesPro:             []string{"basic", "advanced", "batch"},
		FeaturesEnterprise:      []string{"basic", "advanced", "batch", "api", "white-label"},
	})
	if err != nil {
		panic(err)
	}

	return p
}

// returns a copy of the tier's policy; unknown tiers get the free policy
func (p *Policies) For(tier Tier) TierPolicy {
	policy, ok := p.byTier[tier]
	if !ok {
		policy = p.byTier[TierFree]
	}

	policy.Features = slices.Clone(policy.Features)
	return policy
}

// lists configured tiers in a stable order
func (p *Policies) Tiers() []Tier {
	tiers := make([]Tier, 0, len(p.byTier))

	for _, t := range []Tier{TierFree, TierPro, TierEnterprise} {
		if _, ok := p.byTier[t]; ok {
			tiers = append(tiers, t)
		}
	}

	return tiers
}
