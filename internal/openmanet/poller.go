package openmanet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"xcom/map-go/internal/metrics"
	"xcom/map-go/internal/overlay"
)

// Refresh interval bounds. Configured values are clamped into this range.
const (
	MinRefresh     = 500 * time.Millisecond
	MaxRefresh     = 60 * time.Second
	DefaultRefresh = 10 * time.Second
)

// Config is the poller's runtime configuration. Changing it restarts the
// timer and aborts any in-flight call.
type Config struct {
	BridgeURL string
	NodeURL   string
	Refresh   time.Duration
	DNSServer string
}

func (c Config) refresh() time.Duration {
	r := c.Refresh
	if r <= 0 {
		r = DefaultRefresh
	}
	if r < MinRefresh {
		r = MinRefresh
	}
	if r > MaxRefresh {
		r = MaxRefresh
	}
	return r
}

// fetcher is the minimal client surface the poller needs.
type fetcher interface {
	FetchNodes(ctx context.Context) ([]overlay.MeshNode, error)
}

// Poller drives the timed fetch loop: idle → polling(tick) → success|failure
// → polling(tick). A tick that finds a fetch already in flight is skipped
// rather than queued, so a slow node service never builds a backlog.
type Poller struct {
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	cfg      Config
	client   fetcher
	cancel   context.CancelFunc
	onUpdate func()

	inFlight atomic.Bool

	stateMu sync.RWMutex
	nodes   []overlay.MeshNode
	status  string
}

// New builds a stopped poller. onUpdate fires after every state change (fresh
// node list or new status string) and is the overlay's resync trigger.
func New(log zerolog.Logger, cfg Config, onUpdate func(), m *metrics.Metrics) *Poller {
	return &Poller{
		log:      log,
		metrics:  m,
		cfg:      cfg,
		client:   newClientFor(log, cfg),
		onUpdate: onUpdate,
		status:   "idle",
	}
}

func newClientFor(log zerolog.Logger, cfg Config) *Client {
	return NewClient(log, cfg.BridgeURL, cfg.NodeURL, NewResolver(cfg.DNSServer))
}

// Start launches the poll loop. Calling Start on a running poller restarts it.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restartLocked()
}

// Configure swaps the configuration and restarts the loop, aborting any
// in-flight call.
func (p *Poller) Configure(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	p.client = newClientFor(p.log, cfg)
	if p.cancel != nil {
		p.restartLocked()
	}
}

// Stop cancels the timer and any in-flight call. Retained nodes stay
// available through Nodes.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller) restartLocked() {
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx, p.cfg.refresh())
}

func (p *Poller) run(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		// The tick runs on its own goroutine so a slow fetch delays nothing;
		// the in-flight guard makes the overlapping tick a no-op.
		go p.pollOnce(ctx)
		timer.Reset(interval)
	}
}

// pollOnce performs one tick. It reports whether a fetch was actually
// attempted (false when one was already in flight).
func (p *Poller) pollOnce(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.IncPoll("skipped")
		return false
	}
	defer p.inFlight.Store(false)

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	nodes, err := client.FetchNodes(ctx)
	if err != nil {
		// Keep the previous node list; a flapping feed must not clear the map.
		p.metrics.IncPoll("error")
		p.setStatus(fmt.Sprintf("openmanet unreachable: %v", err))
		p.log.Warn().Err(err).Msg("openmanet poll failed")
		return true
	}

	p.metrics.IncPoll("ok")
	p.stateMu.Lock()
	p.nodes = nodes
	p.status = fmt.Sprintf("ok (%d nodes)", len(nodes))
	p.stateMu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate()
	}
	return true
}

func (p *Poller) setStatus(status string) {
	p.stateMu.Lock()
	changed := p.status != status
	p.status = status
	p.stateMu.Unlock()
	if changed && p.onUpdate != nil {
		p.onUpdate()
	}
}

// Nodes returns a copy of the last successful node list. Implements the
// overlay's NodeSource.
func (p *Poller) Nodes() []overlay.MeshNode {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	out := make([]overlay.MeshNode, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// Status returns the human-readable poller state.
func (p *Poller) Status() string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.status
}
