package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/ninja0404/pump-bundler/pkg/pricefeed"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

// Seller sells a share of each wallet's holdings. *Executor satisfies it.
type Seller interface {
	SellPercent(ctx context.Context, mint solana.PublicKey, wallets []wallet.Wallet, pct float64) (Fill, error)
}

// PriceSource streams prices. *pricefeed.Feed satisfies it.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, mint solana.PublicKey) (pricefeed.PriceData, error)
	Subscribe(ctx context.Context, mint solana.PublicKey, cb pricefeed.Callback) (pricefeed.Unsubscribe, error)
}

// TriggerKind selects what starts a delay sell.
type TriggerKind string

const (
	TriggerTime      TriggerKind = "time"
	TriggerPrice     TriggerKind = "price"
	TriggerMarketCap TriggerKind = "marketcap"
	TriggerManual    TriggerKind = "manual"
)

// Trigger fires after After (time) or once the price or market cap
// reaches Value. A manual trigger fires any kind early.
type Trigger struct {
	Kind  TriggerKind   `yaml:"kind"`
	After time.Duration `yaml:"after"`
	Value float64       `yaml:"value"`
}

// DelayConfig sells Percent from Wallets Delay after the trigger fires.
type DelayConfig struct {
	Trigger Trigger       `yaml:"trigger"`
	Delay   time.Duration `yaml:"delay"`
	Percent float64       `yaml:"percent"`
	Wallets string        `yaml:"wallets"`
}

func (c DelayConfig) Validate() error {
	switch c.Trigger.Kind {
	case TriggerTime:
		if c.Trigger.After < 0 {
			return types.NewValidationError("trigger.after", "must not be negative")
		}
	case TriggerPrice, TriggerMarketCap:
		if c.Trigger.Value <= 0 {
			return types.NewValidationError("trigger.value", "must be greater than 0")
		}
	case TriggerManual:
	default:
		return types.NewValidationError("trigger.kind", fmt.Sprintf("unknown trigger %q", c.Trigger.Kind))
	}
	if c.Delay < 0 {
		return types.NewValidationError("delay", "must not be negative")
	}
	return types.ValidatePercentage("percent", c.Percent)
}

// SmartLevel sells Percent from Wallets once the price reaches Price.
type SmartLevel struct {
	Price   float64 `yaml:"price"`
	Percent float64 `yaml:"percent"`
	Wallets string  `yaml:"wallets"`
}

// SmartConfig sells in steps as the price climbs through Levels.
type SmartConfig struct {
	Levels  []SmartLevel  `yaml:"levels"`
	Spacing time.Duration `yaml:"spacing"`
}

func (c SmartConfig) Validate() error {
	if len(c.Levels) == 0 {
		return types.NewValidationError("levels", "at least one level is required")
	}
	for i, l := range c.Levels {
		if l.Price <= 0 {
			return types.NewValidationError(fmt.Sprintf("levels[%d].price", i), "must be greater than 0")
		}
		if err := types.ValidatePercentage(fmt.Sprintf("levels[%d].percent", i), l.Percent); err != nil {
			return err
		}
	}
	if c.Spacing < 0 {
		return types.NewValidationError("spacing", "must not be negative")
	}
	return nil
}

// sorted returns the levels in ascending price order.
func (c SmartConfig) sorted() []SmartLevel {
	out := append([]SmartLevel(nil), c.Levels...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// AutoAction is what an auto strategy does when a target is hit.
type AutoAction string

const (
	ActionSellAll     AutoAction = "sell-all"
	ActionSellPercent AutoAction = "sell-percentage"
)

// AutoConfig watches targets and a stop loss. The stop loss is checked
// first on every tick and always sells everything from every wallet, dev
// included. Wallets applies to targets only.
type AutoConfig struct {
	TargetPrice     float64    `yaml:"target_price"`
	TargetMarketCap float64    `yaml:"target_market_cap"`
	TargetProfitPct float64    `yaml:"target_profit_pct"`
	Action          AutoAction `yaml:"action"`
	Percent         float64    `yaml:"percent"`
	StopLossPrice   float64    `yaml:"stop_loss_price"`
	StopLossDropPct float64    `yaml:"stop_loss_drop_pct"`
	Wallets         string     `yaml:"wallets"`
}

func (c AutoConfig) Validate() error {
	if c.TargetPrice <= 0 && c.TargetMarketCap <= 0 && c.TargetProfitPct <= 0 &&
		c.StopLossPrice <= 0 && c.StopLossDropPct <= 0 {
		return types.NewValidationError("targets", "need a target or a stop loss")
	}
	switch c.Action {
	case ActionSellAll, "":
	case ActionSellPercent:
		if err := types.ValidatePercentage("percent", c.Percent); err != nil {
			return err
		}
	default:
		return types.NewValidationError("action", fmt.Sprintf("unknown action %q", c.Action))
	}
	if c.StopLossDropPct < 0 || c.StopLossDropPct > 100 {
		return types.NewValidationError("stop_loss_drop_pct", "must be between 0 and 100")
	}
	return nil
}

func (c AutoConfig) targetPercent() float64 {
	if c.Action == ActionSellPercent {
		return c.Percent
	}
	return 100
}

// stopLoss reports whether price breaches the floor or the drawdown from peak.
func (c AutoConfig) stopLoss(price, peak float64) bool {
	if c.StopLossPrice > 0 && price <= c.StopLossPrice {
		return true
	}
	return c.StopLossDropPct > 0 && peak > 0 && (peak-price)/peak*100 >= c.StopLossDropPct
}

func (c AutoConfig) targetHit(pd pricefeed.PriceData, initial float64) bool {
	switch {
	case c.TargetPrice > 0 && pd.Price >= c.TargetPrice:
		return true
	case c.TargetMarketCap > 0 && pd.MarketCap >= c.TargetMarketCap:
		return true
	case c.TargetProfitPct > 0 && initial > 0 && (pd.Price-initial)/initial*100 >= c.TargetProfitPct:
		return true
	}
	return false
}

// sellEngine is shared by the three sell strategies.
type sellEngine struct {
	Seller  Seller
	Prices  PriceSource
	Wallets *wallet.Collection
	Mint    solana.PublicKey
}

// sell resolves the wallet selector and sells pct from it, folding the
// result into the session record.
func (e *sellEngine) sell(ctx context.Context, s *Session, pct float64, selector string) {
	wallets, err := e.Wallets.Select(selector)
	if err != nil {
		s.fail(err)
		return
	}
	fill, err := e.Seller.SellPercent(ctx, e.Mint, wallets, pct)
	s.Update(func(st *Status) {
		st.SellsExecuted += fill.Sells
		st.TokensSold += fill.TokensSold
		st.Volume += fill.SolVolume
	})
	if err != nil {
		s.fail(err)
	}
}

// watch streams prices into a channel that keeps only the latest value,
// seeded with the current price when it can be read. ended yields the
// error once the price stream stops on its own.
func (e *sellEngine) watch(ctx context.Context, s *Session) (ticks <-chan pricefeed.PriceData, ended <-chan error, unsub pricefeed.Unsubscribe, err error) {
	latest := make(chan pricefeed.PriceData, 1)
	stopped := make(chan error, 1)
	push := func(pd pricefeed.PriceData) {
		select {
		case <-latest:
		default:
		}
		select {
		case latest <- pd:
		default:
		}
	}
	if pd, err := e.Prices.GetCurrentPrice(ctx, e.Mint); err == nil {
		push(pd)
	} else {
		s.Log().Warn().Err(err).Msg("initial price unavailable")
	}
	unsub, err = e.Prices.Subscribe(ctx, e.Mint, func(ch pricefeed.PriceChange) {
		if ch.Err != nil {
			select {
			case stopped <- ch.Err:
			default:
			}
			return
		}
		push(ch.New)
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("price subscription: %w", err)
	}
	return latest, stopped, unsub, nil
}

// Delay sells once after a trigger and a fixed wait.
type Delay struct {
	sellEngine
	Config DelayConfig
}

// NewDelay builds a delay strategy.
func NewDelay(seller Seller, prices PriceSource, wallets *wallet.Collection, mint solana.PublicKey, cfg DelayConfig) *Delay {
	return &Delay{sellEngine: sellEngine{seller, prices, wallets, mint}, Config: cfg}
}

func (d *Delay) Run(ctx context.Context, s *Session) error {
	fired, err := d.waitTrigger(ctx, s)
	if err != nil || !fired {
		return err
	}
	s.markTriggered()
	s.Log().Info().Dur("delay", d.Config.Delay).Msg("trigger fired")
	if !s.Sleep(ctx, d.Config.Delay) {
		return nil
	}
	d.sell(ctx, s, d.Config.Percent, d.Config.Wallets)
	return nil
}

func (d *Delay) waitTrigger(ctx context.Context, s *Session) (bool, error) {
	t := d.Config.Trigger
	switch t.Kind {
	case TriggerTime:
		timer := time.NewTimer(t.After)
		defer timer.Stop()
		select {
		case <-timer.C:
			return true, nil
		case <-s.Triggered():
			return true, nil
		case <-s.Stopping():
			return false, nil
		case <-ctx.Done():
			return false, nil
		}
	case TriggerPrice, TriggerMarketCap:
		ticks, ended, unsub, err := d.watch(ctx, s)
		if err != nil {
			return false, err
		}
		defer unsub()
		for {
			select {
			case pd := <-ticks:
				v := pd.Price
				if t.Kind == TriggerMarketCap {
					v = pd.MarketCap
				}
				if v >= t.Value {
					return true, nil
				}
			case err := <-ended:
				return false, err
			case <-s.Triggered():
				return true, nil
			case <-s.Stopping():
				return false, nil
			case <-ctx.Done():
				return false, nil
			}
		}
	default:
		s.Log().Info().Msg("waiting for manual trigger")
		select {
		case <-s.Triggered():
			return true, nil
		case <-s.Stopping():
			return false, nil
		case <-ctx.Done():
			return false, nil
		}
	}
}

// Smart sells at ascending price levels.
type Smart struct {
	sellEngine
	Config SmartConfig
}

// NewSmart builds a smart strategy.
func NewSmart(seller Seller, prices PriceSource, wallets *wallet.Collection, mint solana.PublicKey, cfg SmartConfig) *Smart {
	return &Smart{sellEngine: sellEngine{seller, prices, wallets, mint}, Config: cfg}
}

func (m *Smart) Run(ctx context.Context, s *Session) error {
	levels := m.Config.sorted()
	ticks, ended, unsub, err := m.watch(ctx, s)
	if err != nil {
		return err
	}
	defer unsub()

	next := 0
	for {
		select {
		case pd := <-ticks:
			for next < len(levels) && pd.Price >= levels[next].Price {
				l := levels[next]
				if next == 0 {
					s.markTriggered()
				}
				s.Log().Info().Int("level", next+1).Int("levels", len(levels)).
					Float64("target", l.Price).Float64("price", pd.Price).Msg("price level reached")
				m.sell(ctx, s, l.Percent, l.Wallets)
				next++
				if next < len(levels) && m.Config.Spacing > 0 && !s.Sleep(ctx, m.Config.Spacing) {
					return nil
				}
				if s.Stopped() {
					return nil
				}
			}
			if next == len(levels) {
				return nil
			}
		case err := <-ended:
			return err
		case <-s.Stopping():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// stopLossWallets is what a stop loss exits, whatever Wallets selects for targets.
const stopLossWallets = "all+dev"

// Auto sells on a target or a stop loss, whichever comes first.
type Auto struct {
	sellEngine
	Config AutoConfig
}

// NewAuto builds an auto strategy.
func NewAuto(seller Seller, prices PriceSource, wallets *wallet.Collection, mint solana.PublicKey, cfg AutoConfig) *Auto {
	return &Auto{sellEngine: sellEngine{seller, prices, wallets, mint}, Config: cfg}
}

func (a *Auto) Run(ctx context.Context, s *Session) error {
	ticks, ended, unsub, err := a.watch(ctx, s)
	if err != nil {
		return err
	}
	defer unsub()

	var initial, peak float64
	for {
		select {
		case pd := <-ticks:
			if initial == 0 {
				initial = pd.Price
			}
			peak = max(peak, pd.Price)

			if a.Config.stopLoss(pd.Price, peak) {
				s.markTriggered()
				s.Log().Warn().Float64("price", pd.Price).Float64("peak", peak).Msg("stop loss hit")
				a.sell(ctx, s, 100, stopLossWallets)
				return nil
			}
			if a.Config.targetHit(pd, initial) {
				s.markTriggered()
				s.Log().Info().Float64("price", pd.Price).Float64("market_cap", pd.MarketCap).Msg("target reached")
				a.sell(ctx, s, a.Config.targetPercent(), a.Config.Wallets)
				return nil
			}
		case err := <-ended:
			return err
		case <-s.Stopping():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
