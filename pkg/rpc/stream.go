package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/rs/zerolog"

	"github.com/ninja0404/pump-bundler/pkg/config"
)

const (
	defaultMaxResubscribe = 5
	defaultResubscribeGap = 2 * time.Second
)

// Stream multiplexes account-change subscriptions over one websocket.
// The connection is dialed on first use and redialed after failures.
type Stream struct {
	url        string
	commitment solanarpc.CommitmentType
	log        zerolog.Logger

	maxResubscribe int
	resubscribeGap time.Duration

	mu     sync.Mutex
	client *ws.Client
}

// NewStream prepares a websocket stream for the configured endpoint.
func NewStream(cfg config.RPCConfig) *Stream {
	log := cfg.Logger
	if log.GetLevel() == zerolog.NoLevel {
		log = zerolog.Nop()
	}
	commitment := solanarpc.CommitmentType(cfg.Commitment)
	if commitment == "" {
		commitment = solanarpc.CommitmentConfirmed
	}
	return &Stream{
		url:            cfg.ResolveWSURL(),
		commitment:     commitment,
		log:            log,
		maxResubscribe: defaultMaxResubscribe,
		resubscribeGap: defaultResubscribeGap,
	}
}

func (s *Stream) conn(ctx context.Context) (*ws.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := ws.Connect(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("ws connect %s: %w", s.url, err)
	}
	s.client = client
	return client, nil
}

// drop discards a broken connection so the next conn call redials.
func (s *Stream) drop(broken *ws.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == broken && broken != nil {
		broken.Close()
		s.client = nil
	}
}

// Close tears down the websocket. Live subscriptions end with it.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

// AccountSubscription delivers raw account data on every change.
type AccountSubscription struct {
	updates chan []byte
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	err     error
}

// Updates yields account bytes; the channel closes when the subscription ends.
func (a *AccountSubscription) Updates() <-chan []byte {
	return a.updates
}

// Err reports why the subscription ended, valid once Updates is closed.
func (a *AccountSubscription) Err() error {
	<-a.done
	return a.err
}

// Close stops the subscription and waits for its reader to exit. Safe to call twice.
func (a *AccountSubscription) Close() {
	a.once.Do(func() {
		a.cancel()
		<-a.done
	})
}

// Subscribe opens an account-change subscription for addr.
func (s *Stream) Subscribe(ctx context.Context, addr solana.PublicKey) (*AccountSubscription, error) {
	sub, client, err := s.open(ctx, addr)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	out := &AccountSubscription{
		updates: make(chan []byte, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(runCtx, addr, sub, client, out)
	return out, nil
}

func (s *Stream) open(ctx context.Context, addr solana.PublicKey) (*ws.AccountSubscription, *ws.Client, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	sub, err := client.AccountSubscribeWithOpts(addr, s.commitment, solana.EncodingBase64)
	if err != nil {
		s.drop(client)
		return nil, nil, fmt.Errorf("account subscribe %s: %w", addr, err)
	}
	return sub, client, nil
}

func (s *Stream) run(ctx context.Context, addr solana.PublicKey, sub *ws.AccountSubscription, client *ws.Client, out *AccountSubscription) {
	defer close(out.done)
	defer close(out.updates)
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
		}
	}()

	retries := 0
	var lastErr error
	for {
		if sub == nil {
			if retries >= s.maxResubscribe {
				out.err = fmt.Errorf("account %s: giving up after %d resubscribes: %w", addr, retries, lastErr)
				s.log.Error().Err(lastErr).Str("account", addr.String()).Msg("account subscription lost")
				return
			}
			retries++
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(retries) * s.resubscribeGap):
			}
			var err error
			sub, client, err = s.open(ctx, addr)
			if err != nil {
				lastErr = err
				s.log.Warn().Err(err).Str("account", addr.String()).Int("attempt", retries).Msg("resubscribe failed")
				continue
			}
		}

		res, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lastErr = err
			s.log.Warn().Err(err).Str("account", addr.String()).Msg("account subscription dropped, resubscribing")
			sub.Unsubscribe()
			sub = nil
			if errors.Is(err, ws.ErrSubscriptionClosed) {
				s.drop(client)
			}
			continue
		}
		retries = 0
		if res == nil || res.Value == nil || res.Value.Data == nil {
			continue
		}
		select {
		case out.updates <- res.Value.Data.GetBinary():
		case <-ctx.Done():
			return
		}
	}
}
