package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/quote"
	"github.com/ninja0404/pump-bundler/pkg/rpc"
)

// ErrStreamEnded is delivered to subscribers when a mint's account stream
// stops without being unsubscribed.
var ErrStreamEnded = errors.New("pricefeed: price stream ended")

// Subscription is a live stream of raw account data.
type Subscription interface {
	Updates() <-chan []byte
	Close()
}

// Source supplies curve account data, both one-shot and streamed.
type Source interface {
	GetAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	Subscribe(ctx context.Context, addr solana.PublicKey) (Subscription, error)
}

// RPCSource reads accounts over HTTP and streams them over the websocket.
type RPCSource struct {
	Client *rpc.Client
	Stream *rpc.Stream
}

func (s RPCSource) GetAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	return s.Client.GetAccountData(ctx, addr)
}

func (s RPCSource) Subscribe(ctx context.Context, addr solana.PublicKey) (Subscription, error) {
	return s.Stream.Subscribe(ctx, addr)
}

// Callback receives price changes. It runs on the subscription's reader
// goroutine and must not block for long.
type Callback func(PriceChange)

// Unsubscribe removes one callback. Calling it again is a no-op.
type Unsubscribe func()

type mintWatch struct {
	curve     solana.PublicKey
	sub       Subscription
	callbacks map[uuid.UUID]Callback
	last      *PriceData
	done      chan struct{}
}

// Feed fans bonding curve updates out to price subscribers. Each mint has
// at most one underlying subscription however many callbacks are attached.
type Feed struct {
	src Source
	log zerolog.Logger
	now func() time.Time

	mu       sync.Mutex
	fiatRate float64
	watches  map[solana.PublicKey]*mintWatch
}

// NewFeed builds a feed over src.
func NewFeed(src Source, log zerolog.Logger) *Feed {
	return &Feed{
		src:     src,
		log:     log,
		now:     time.Now,
		watches: make(map[solana.PublicKey]*mintWatch),
	}
}

// SetFiatRate sets the SOL price used for the fiat fields. 0 disables them.
func (f *Feed) SetFiatRate(rate float64) {
	f.mu.Lock()
	f.fiatRate = rate
	f.mu.Unlock()
}

func (f *Feed) rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fiatRate
}

// GetCurrentPrice fetches the curve once and prices it.
func (f *Feed) GetCurrentPrice(ctx context.Context, mint solana.PublicKey) (PriceData, error) {
	bc, err := quote.FetchBondingCurve(ctx, f.src, mint)
	if err != nil {
		return PriceData{}, err
	}
	return Compute(mint, bc, f.rate(), f.now()), nil
}

// Subscribe attaches cb to price changes of mint. The first subscriber
// for a mint opens the account stream; later ones share it.
func (f *Feed) Subscribe(ctx context.Context, mint solana.PublicKey, cb Callback) (Unsubscribe, error) {
	if cb == nil {
		return nil, errors.New("pricefeed: nil callback")
	}
	curve, err := pump.BondingCurvePDA(mint)
	if err != nil {
		return nil, fmt.Errorf("derive bonding curve: %w", err)
	}

	id := uuid.New()

	f.mu.Lock()
	if w, ok := f.watches[mint]; ok {
		w.callbacks[id] = cb
		f.mu.Unlock()
		return f.unsubscriber(mint, id), nil
	}
	f.mu.Unlock()

	sub, err := f.src.Subscribe(ctx, curve)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", curve, err)
	}

	f.mu.Lock()
	if w, ok := f.watches[mint]; ok {
		// Lost a race with another first subscriber.
		w.callbacks[id] = cb
		f.mu.Unlock()
		sub.Close()
		return f.unsubscriber(mint, id), nil
	}
	w := &mintWatch{
		curve:     curve,
		sub:       sub,
		callbacks: map[uuid.UUID]Callback{id: cb},
		done:      make(chan struct{}),
	}
	f.watches[mint] = w
	f.mu.Unlock()

	go f.read(mint, w)
	f.log.Info().Str("mint", mint.String()).Str("curve", curve.String()).Msg("price subscription opened")
	return f.unsubscriber(mint, id), nil
}

func (f *Feed) unsubscriber(mint solana.PublicKey, id uuid.UUID) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() { f.remove(mint, id) })
	}
}

func (f *Feed) remove(mint solana.PublicKey, id uuid.UUID) {
	f.mu.Lock()
	w, ok := f.watches[mint]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(w.callbacks, id)
	if len(w.callbacks) > 0 {
		f.mu.Unlock()
		return
	}
	delete(f.watches, mint)
	f.mu.Unlock()

	w.sub.Close()
	f.log.Info().Str("mint", mint.String()).Msg("price subscription closed")
}

// UnsubscribeAll closes every subscription. Close failures are ignored.
func (f *Feed) UnsubscribeAll() {
	f.mu.Lock()
	watches := f.watches
	f.watches = make(map[solana.PublicKey]*mintWatch)
	f.mu.Unlock()

	for mint, w := range watches {
		func() {
			defer func() {
				if r := recover(); r != nil {
					f.log.Warn().Interface("panic", r).Str("mint", mint.String()).Msg("closing price subscription")
				}
			}()
			w.sub.Close()
		}()
	}
}

// ActiveSubscriptions lists mints with an open stream.
func (f *Feed) ActiveSubscriptions() []solana.PublicKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]solana.PublicKey, 0, len(f.watches))
	for mint := range f.watches {
		out = append(out, mint)
	}
	return out
}

// LastPrice returns the cached price of a subscribed mint.
func (f *Feed) LastPrice(mint solana.PublicKey) (PriceData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watches[mint]
	if !ok || w.last == nil {
		return PriceData{}, false
	}
	return *w.last, true
}

func (f *Feed) read(mint solana.PublicKey, w *mintWatch) {
	defer close(w.done)
	f.pump(mint, w)
	f.ended(mint, w)
}

// ended drops a watch whose stream stopped while subscribers were still
// attached, so the next Subscribe opens a fresh stream, and tells the
// stranded subscribers.
func (f *Feed) ended(mint solana.PublicKey, w *mintWatch) {
	f.mu.Lock()
	if f.watches[mint] != w {
		f.mu.Unlock()
		return
	}
	delete(f.watches, mint)
	cbs := make([]Callback, 0, len(w.callbacks))
	for _, cb := range w.callbacks {
		cbs = append(cbs, cb)
	}
	var last PriceData
	if w.last != nil {
		last = *w.last
	}
	f.mu.Unlock()

	err := ErrStreamEnded
	if se, ok := w.sub.(interface{ Err() error }); ok && se.Err() != nil {
		err = fmt.Errorf("%w: %v", ErrStreamEnded, se.Err())
	}
	w.sub.Close()
	f.log.Warn().Err(err).Str("mint", mint.String()).Int("subscribers", len(cbs)).Msg("price stream ended")

	change := PriceChange{Mint: mint, Old: last, New: last, Timestamp: f.now(), Err: err}
	for _, cb := range cbs {
		f.deliver(mint, cb, change)
	}
}

func (f *Feed) pump(mint solana.PublicKey, w *mintWatch) {
	for data := range w.sub.Updates() {
		bc, err := pump.DecodeBondingCurve(data)
		if err != nil {
			f.log.Warn().Err(err).Str("mint", mint.String()).Msg("undecodable curve update")
			continue
		}
		cur := Compute(mint, bc, f.rate(), f.now())

		f.mu.Lock()
		if f.watches[mint] != w {
			f.mu.Unlock()
			return
		}
		old := cur
		if w.last != nil {
			old = *w.last
		}
		w.last = &cur
		cbs := make([]Callback, 0, len(w.callbacks))
		for _, cb := range w.callbacks {
			cbs = append(cbs, cb)
		}
		f.mu.Unlock()

		change := Diff(old, cur)
		for _, cb := range cbs {
			f.deliver(mint, cb, change)
		}
	}
}

func (f *Feed) deliver(mint solana.PublicKey, cb Callback, ch PriceChange) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error().Interface("panic", r).Str("mint", mint.String()).Msg("price callback panicked")
		}
	}()
	cb(ch)
}
