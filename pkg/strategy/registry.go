// Package strategy runs volume and sell engines as supervised background
// sessions.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/ninja0404/pump-bundler/pkg/types"
)

// Kind names an engine.
type Kind string

const (
	KindVolume Kind = "volume"
	KindDelay  Kind = "delay"
	KindSmart  Kind = "smart"
	KindAuto   Kind = "auto"
)

// Status is a point-in-time copy of a session record.
type Status struct {
	ID             string
	Kind           Kind
	Mint           solana.PublicKey
	Mode           string
	Active         bool
	Triggered      bool
	StartTime      time.Time
	TriggerTime    time.Time
	EndTime        time.Time
	TradesExecuted int
	SellsExecuted  int
	Volume         float64
	TokensSold     uint64
	Errors         int
	LastError      string
}

// RunFunc is the body of a session. Returning ends the session; a non-nil
// error other than a stop is recorded on the status.
type RunFunc func(ctx context.Context, s *Session) error

type entry struct {
	status  Status
	stop    chan struct{}
	trigger chan struct{}
	done    chan struct{}

	stopOnce    sync.Once
	triggerOnce sync.Once
}

// Registry owns every running session. Each record is written only by its
// session goroutine; readers get copies.
type Registry struct {
	log zerolog.Logger
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:     log,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Start launches run in its own goroutine and returns the session id,
// {kind}-{mint}-{startMs}.
func (r *Registry) Start(ctx context.Context, kind Kind, mint solana.PublicKey, mode string, run RunFunc) string {
	start := r.now()
	e := &entry{
		stop:    make(chan struct{}),
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	ms := start.UnixMilli()
	id := fmt.Sprintf("%s-%s-%d", kind, mint, ms)
	for r.entries[id] != nil {
		ms++
		id = fmt.Sprintf("%s-%s-%d", kind, mint, ms)
	}
	e.status = Status{
		ID:        id,
		Kind:      kind,
		Mint:      mint,
		Mode:      mode,
		Active:    true,
		StartTime: start,
	}
	r.entries[id] = e
	r.mu.Unlock()

	s := &Session{id: id, reg: r, e: e, log: r.log.With().Str("session", id).Logger()}
	go r.supervise(ctx, s, run)
	r.log.Info().Str("session", id).Str("mode", mode).Msg("session started")
	return id
}

func (r *Registry) supervise(ctx context.Context, s *Session, run RunFunc) {
	defer close(s.e.done)

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return run(ctx, s)
	}()

	s.Update(func(st *Status) {
		st.Active = false
		st.EndTime = r.now()
		if err != nil && !s.Stopped() {
			st.Errors++
			st.LastError = err.Error()
		}
	})
	st := s.Status()
	ev := s.log.Info()
	if err != nil && !s.Stopped() {
		ev = s.log.Error().Err(err)
	}
	ev.Int("trades", st.TradesExecuted).Int("sells", st.SellsExecuted).
		Float64("volume_sol", st.Volume).Int("errors", st.Errors).Msg("session ended")
}

// Get returns a copy of the session record.
func (r *Registry) Get(id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Status{}, fmt.Errorf("%s: %w", id, types.ErrSessionNotFound)
	}
	return e.status, nil
}

// List returns session records ordered by start time.
func (r *Registry) List(activeOnly bool) []Status {
	r.mu.Lock()
	out := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		if activeOnly && !e.status.Active {
			continue
		}
		out = append(out, e.status)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Stop asks an active session to end. Work already in flight completes;
// nothing further is scheduled. It reports whether the session was active.
func (r *Registry) Stop(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	active := ok && e.status.Active
	r.mu.Unlock()
	if !active {
		return false
	}
	e.stopOnce.Do(func() { close(e.stop) })
	r.log.Info().Str("session", id).Msg("stop requested")
	return true
}

// StopAll stops every active session.
func (r *Registry) StopAll() {
	for _, st := range r.List(true) {
		r.Stop(st.ID)
	}
}

// Trigger fires the manual trigger of a session.
func (r *Registry) Trigger(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	active := ok && e.status.Active
	r.mu.Unlock()
	if !active {
		return false
	}
	e.triggerOnce.Do(func() { close(e.trigger) })
	return true
}

// Done returns a channel closed once the session has ended.
func (r *Registry) Done(id string) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, types.ErrSessionNotFound)
	}
	return e.done, nil
}

// Session is the running side of a registry entry.
type Session struct {
	id  string
	reg *Registry
	e   *entry
	log zerolog.Logger
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Log returns the session logger.
func (s *Session) Log() *zerolog.Logger { return &s.log }

// Update mutates the session record.
func (s *Session) Update(fn func(*Status)) {
	s.reg.mu.Lock()
	fn(&s.e.status)
	s.reg.mu.Unlock()
}

// Status returns a copy of the session record.
func (s *Session) Status() Status {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.e.status
}

// Stopping is closed when a stop was requested.
func (s *Session) Stopping() <-chan struct{} { return s.e.stop }

// Stopped reports whether a stop was requested.
func (s *Session) Stopped() bool {
	select {
	case <-s.e.stop:
		return true
	default:
		return false
	}
}

// Triggered is closed by a manual trigger.
func (s *Session) Triggered() <-chan struct{} { return s.e.trigger }

// Sleep waits d and reports false if the session was stopped or ctx ended first.
func (s *Session) Sleep(ctx context.Context, d time.Duration) bool {
	if s.Stopped() {
		return false
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.e.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// fail records a non-fatal error and keeps the session running.
func (s *Session) fail(err error) {
	s.log.Warn().Err(err).Msg("session step failed")
	s.Update(func(st *Status) {
		st.Errors++
		st.LastError = err.Error()
	})
}

// markTriggered records the trigger moment once.
func (s *Session) markTriggered() {
	s.Update(func(st *Status) {
		if !st.Triggered {
			st.Triggered = true
			st.TriggerTime = s.reg.now()
		}
	})
}
