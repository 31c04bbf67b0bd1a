// Package vanity searches for mint keypairs whose address matches a pattern,
// e.g. the conventional "pump" suffix for launched tokens.
package vanity

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ninja0404/pump-bundler/pkg/types"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// errFound stops the remaining workers once one of them matched.
var errFound = errors.New("vanity: found")

// Pattern describes the address to search for.
type Pattern struct {
	Prefix          string
	Suffix          string
	CaseInsensitive bool
}

// Validate rejects empty patterns and characters base58 cannot produce.
func (p Pattern) Validate() error {
	if p.Prefix == "" && p.Suffix == "" {
		return types.NewValidationError("vanity", "prefix or suffix is required")
	}
	for _, r := range p.Prefix + p.Suffix {
		if !strings.ContainsRune(base58Alphabet, r) {
			if p.CaseInsensitive && strings.ContainsRune(base58Alphabet, toggleCase(r)) {
				continue
			}
			return types.NewValidationError("vanity", fmt.Sprintf("%q is not a base58 character", r))
		}
	}
	return nil
}

// Match reports whether addr satisfies the pattern.
func (p Pattern) Match(addr string) bool {
	prefix, suffix := p.Prefix, p.Suffix
	if p.CaseInsensitive {
		addr = strings.ToLower(addr)
		prefix = strings.ToLower(prefix)
		suffix = strings.ToLower(suffix)
	}
	return strings.HasPrefix(addr, prefix) && strings.HasSuffix(addr, suffix)
}

// Difficulty is the expected number of attempts, 58^len for a case-sensitive pattern.
func (p Pattern) Difficulty() uint64 {
	n := len(p.Prefix) + len(p.Suffix)
	d := uint64(1)
	for i := 0; i < n; i++ {
		d *= 58
	}
	return d
}

// Result is a matching mint keypair.
type Result struct {
	Key      solana.PrivateKey
	Attempts uint64
	Duration time.Duration
}

// Searcher runs a bounded parallel search.
type Searcher struct {
	Workers int
	Timeout time.Duration
	Log     zerolog.Logger
}

// Search generates random keypairs until one matches p, ctx ends or the timeout elapses.
func (s Searcher) Search(ctx context.Context, p Pattern) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var (
		attempts atomic.Uint64
		found    atomic.Pointer[solana.PrivateKey]
	)
	start := time.Now()
	s.Log.Debug().Str("prefix", p.Prefix).Str("suffix", p.Suffix).
		Uint64("expected_attempts", p.Difficulty()).Int("workers", workers).Msg("vanity search started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				key, err := solana.NewRandomPrivateKey()
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				attempts.Add(1)
				if p.Match(key.PublicKey().String()) {
					found.CompareAndSwap(nil, &key)
					return errFound
				}
			}
		})
	}
	err := g.Wait()

	if key := found.Load(); key != nil {
		res := &Result{Key: *key, Attempts: attempts.Load(), Duration: time.Since(start)}
		s.Log.Info().Str("mint", key.PublicKey().String()).Uint64("attempts", res.Attempts).
			Dur("elapsed", res.Duration).Msg("vanity mint found")
		return res, nil
	}
	return nil, fmt.Errorf("vanity search stopped after %d attempts: %w", attempts.Load(), err)
}

// MintKey returns a fresh random mint key when p is empty, otherwise a vanity key.
func (s Searcher) MintKey(ctx context.Context, p Pattern) (solana.PrivateKey, error) {
	if p.Prefix == "" && p.Suffix == "" {
		return solana.NewRandomPrivateKey()
	}
	res, err := s.Search(ctx, p)
	if err != nil {
		return nil, err
	}
	return res.Key, nil
}

func toggleCase(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return r - 'a' + 'A'
	case r >= 'A' && r <= 'Z':
		return r - 'A' + 'a'
	}
	return r
}
