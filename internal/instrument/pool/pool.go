// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pool owns the live instrument connections and lends scoped,
// exclusive leases. At most one lease is outstanding per instrument id at
// any time within the process.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/log"
	"github.com/webpdtool/webpdtool/internal/metrics"
)

// DefaultIdleTimeout closes dormant connections; the next acquirer
// reconnects transparently.
const DefaultIdleTimeout = 5 * time.Minute

// Pool is the process-wide connection pool, keyed by instrument id.
type Pool struct {
	reg         *instrument.Registry
	idleTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// entry guards one instrument. The slot channel is a single-holder mutex:
// it holds a token while the instrument is leased. drv and lastUsed are
// mutated only while holding the slot.
type entry struct {
	slot     chan struct{}
	drv      instrument.Driver
	lastUsed time.Time
}

// Lease is a scoped acquisition of one instrument connection. Release is
// idempotent and must run on every exit path.
type Lease struct {
	ID     string
	Driver instrument.Driver

	pool *Pool
	ent  *entry
	once sync.Once
}

// New creates a pool over the given registry. idleTimeout <= 0 selects the
// default.
func New(reg *instrument.Registry, idleTimeout time.Duration) *Pool {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	p := &Pool{
		reg:         reg,
		idleTimeout: idleTimeout,
		entries:     make(map[string]*entry),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

// Acquire returns an exclusive lease for the instrument id, connecting
// lazily on first use. If ctx is cancelled while waiting, no lease is
// created. A construction failure is returned to the acquirer and does not
// poison the key.
func (p *Pool) Acquire(ctx context.Context, id string) (*Lease, error) {
	if _, err := p.reg.GetConfig(id); err != nil {
		return nil, err
	}

	e := p.entry(id)

	start := time.Now()
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for instrument %s: %w", id, ctx.Err())
	}
	metrics.ObserveLeaseWait(id, time.Since(start))

	if e.drv == nil {
		drv, err := p.connect(ctx, id)
		if err != nil {
			<-e.slot
			return nil, err
		}
		e.drv = drv
	}

	metrics.IncLeasesInUse()
	return &Lease{ID: id, Driver: e.drv, pool: p, ent: e}, nil
}

// Release returns the connection to the pool. Safe to call multiple times.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.ent.lastUsed = time.Now()
		<-l.ent.slot
		metrics.DecLeasesInUse()
	})
}

// Close shuts the pool down: stops idle eviction and closes every
// connection whose lease is not currently held.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done

		p.mu.Lock()
		defer p.mu.Unlock()
		for id, e := range p.entries {
			select {
			case e.slot <- struct{}{}:
				if e.drv != nil {
					if err := e.drv.Close(); err != nil {
						log.WithComponent("pool").Warn().Err(err).Str("instrument", id).Msg("close on shutdown failed")
					}
					e.drv = nil
				}
				<-e.slot
			default:
				log.WithComponent("pool").Warn().Str("instrument", id).Msg("lease still held at shutdown, skipping close")
			}
		}
	})
}

func (p *Pool) entry(id string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		e = &entry{slot: make(chan struct{}, 1)}
		p.entries[id] = e
	}
	return e
}

func (p *Pool) connect(ctx context.Context, id string) (instrument.Driver, error) {
	drv, err := p.reg.NewDriver(id)
	if err != nil {
		return nil, err
	}
	if err := drv.Initialize(ctx); err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("connect instrument %s: %w", id, err)
	}
	log.WithComponent("pool").Info().Str("instrument", id).Msg("instrument connected")
	return drv, nil
}

func (p *Pool) evictLoop() {
	defer close(p.done)
	interval := p.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	p.mu.Lock()
	snapshot := make(map[string]*entry, len(p.entries))
	for id, e := range p.entries {
		snapshot[id] = e
	}
	p.mu.Unlock()

	now := time.Now()
	for id, e := range snapshot {
		select {
		case e.slot <- struct{}{}:
			if e.drv != nil && now.Sub(e.lastUsed) >= p.idleTimeout {
				if err := e.drv.Close(); err != nil {
					log.WithComponent("pool").Warn().Err(err).Str("instrument", id).Msg("idle close failed")
				} else {
					log.WithComponent("pool").Debug().Str("instrument", id).Msg("closed idle instrument connection")
				}
				e.drv = nil
			}
			<-e.slot
		default:
			// lease held, not idle
		}
	}
}
