package strategy

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ninja0404/pump-bundler/pkg/types"
)

// Pattern selects how a volume plan is shaped.
type Pattern string

const (
	PatternRandom  Pattern = "random"
	PatternWaves   Pattern = "waves"
	PatternPump    Pattern = "pump"
	PatternOrganic Pattern = "organic"
)

// Rotation selects which buyer wallet makes each trade.
type Rotation string

const (
	RotationSequential Rotation = "sequential"
	RotationRandom     Rotation = "random"
)

// VolumeConfig parameterizes a volume session.
type VolumeConfig struct {
	Pattern      Pattern       `yaml:"pattern"`
	MinDelay     time.Duration `yaml:"min_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MinTradeSol  float64       `yaml:"min_trade_sol"`
	MaxTradeSol  float64       `yaml:"max_trade_sol"`
	Duration     time.Duration `yaml:"duration"`
	Rotation     Rotation      `yaml:"rotation"`
	Simultaneous int           `yaml:"simultaneous"`
}

// ApplyDefaults fills rotation and group size when unset.
func (c *VolumeConfig) ApplyDefaults() {
	if c.Rotation == "" {
		c.Rotation = RotationSequential
	}
	if c.Simultaneous == 0 {
		c.Simultaneous = 1
	}
}

// Validate checks the config is usable.
func (c VolumeConfig) Validate() error {
	switch c.Pattern {
	case PatternRandom, PatternWaves, PatternPump, PatternOrganic:
	default:
		return types.NewValidationError("pattern", fmt.Sprintf("unknown pattern %q", c.Pattern))
	}
	switch c.Rotation {
	case RotationSequential, RotationRandom:
	default:
		return types.NewValidationError("rotation", fmt.Sprintf("unknown rotation %q", c.Rotation))
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return types.NewValidationError("delay", "need 0 <= min <= max")
	}
	if c.MaxDelay < time.Second {
		return types.NewValidationError("delay", "max delay must be at least 1s")
	}
	if c.MinTradeSol <= 0 || c.MaxTradeSol < c.MinTradeSol {
		return types.NewValidationError("tradeSize", "need 0 < min <= max")
	}
	if c.Duration <= 0 {
		return types.NewValidationError("duration", "must be greater than 0")
	}
	if c.Simultaneous < 1 || c.Simultaneous > MaxGroup {
		return types.NewValidationError("simultaneous", fmt.Sprintf("must be between 1 and %d", MaxGroup))
	}
	return nil
}

// Trade is one planned trade. Delay is relative to the previous trade and
// At is the offset from the start of the session.
type Trade struct {
	Side        Side
	WalletIndex int
	AmountSol   float64
	Delay       time.Duration
	At          time.Duration
}

// GeneratePlan lays out trades over cfg.Duration. Delays are whole seconds,
// so a zero delay marks a trade that may go out together with the previous one.
func GeneratePlan(cfg VolumeConfig, walletCount int, rng *rand.Rand) []Trade {
	if walletCount <= 0 {
		return nil
	}
	var (
		plan []Trade
		at   time.Duration
		wave = cfg.Duration / 4
	)
	for {
		lo, hi := int64(cfg.MinDelay/time.Second), int64(cfg.MaxDelay/time.Second)
		if cfg.Pattern == PatternOrganic {
			hi = lo + (hi-lo)*3/2
		}
		hi = max(hi, lo, 1)
		delay := time.Duration(lo+rng.Int64N(hi-lo+1)) * time.Second
		at += delay
		if at >= cfg.Duration {
			return plan
		}

		rotation := cfg.Rotation
		amount := cfg.MinTradeSol + rng.Float64()*(cfg.MaxTradeSol-cfg.MinTradeSol)
		var buyProb float64
		switch cfg.Pattern {
		case PatternWaves:
			// Even quarters accumulate, odd quarters distribute.
			buyProb = 0.7
			if at%(2*wave) >= wave {
				buyProb = 0.3
			}
		case PatternPump:
			buyProb = 0.9
		case PatternOrganic:
			rotation = RotationRandom
			buyProb = 0.55
			switch {
			case rng.Float64() < 0.3:
				amount *= 0.5
			case rng.Float64() < 0.1:
				amount *= 2
			}
		default:
			buyProb = 0.5
		}

		side := Sell
		if rng.Float64() < buyProb {
			side = Buy
		}
		plan = append(plan, Trade{
			Side:        side,
			WalletIndex: pickWallet(rng, rotation, len(plan), walletCount),
			AmountSol:   amount,
			Delay:       delay,
			At:          at,
		})
	}
}

func pickWallet(rng *rand.Rand, rotation Rotation, n, walletCount int) int {
	if rotation == RotationSequential {
		return n % walletCount
	}
	return rng.IntN(walletCount)
}
