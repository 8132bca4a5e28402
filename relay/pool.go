package relay

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zapabug/madtrips-sub000/config"
	"github.com/zapabug/madtrips-sub000/metrics"
)

// Status is the lifecycle state of one relay endpoint.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// endpoint is owned exclusively by the pool; only the pool's status-update
// paths mutate it.
type endpoint struct {
	url         string
	status      Status
	lastChecked time.Time
	conn        Conn
}

// Pool owns the set of relay endpoints, keeps a subset of them connected,
// and tells observers when the connected set changes. Partial connectivity
// is the normal steady state: the pool only fails callers when zero
// endpoints survive every retry tier.
type Pool struct {
	cfg      config.RelayConfig
	dial     Dialer
	logger   *zap.SugaredLogger
	throttle *logThrottle
	limiter  *rate.Limiter // reconnect pacing

	mu        sync.Mutex
	endpoints map[string]*endpoint
	observers map[int]func(connected []string)
	nextObs   int
	rng       *rand.Rand
}

// NewPool creates a pool over the configured endpoint groups. Pass
// DialWebsocket as the dialer in production.
func NewPool(cfg config.RelayConfig, dial Dialer, logger *zap.SugaredLogger) *Pool {
	return &Pool{
		cfg:       cfg,
		dial:      dial,
		logger:    logger.Named("relay.pool"),
		throttle:  newLogThrottle(cfg.ErrorThrottle),
		limiter:   rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		endpoints: make(map[string]*endpoint),
		observers: make(map[int]func([]string)),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Initialize is idempotent: if at least one endpoint is already connected it
// returns immediately. Otherwise it tears down any half-initialized state,
// seeds the prioritized primary endpoints, and attempts connection.
func (p *Pool) Initialize(ctx context.Context) bool {
	if p.ConnectedCount() > 0 {
		return true
	}

	p.teardown()
	p.register(pickFirst(p.cfg.Primary, p.cfg.InitialEndpoints))
	return p.Connect(ctx)
}

// Connect dials every registered endpoint that is not already connected,
// bounded overall by the configured connect timeout. Success means at least
// one endpoint reached connected; it is never required that all do.
func (p *Pool) Connect(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	p.mu.Lock()
	var pending []string
	for url, ep := range p.endpoints {
		if ep.status != StatusConnected {
			ep.status = StatusConnecting
			pending = append(pending, url)
		}
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, url := range pending {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			p.dialOne(ctx, url)
		}(url)
	}
	wg.Wait()

	connected := p.ConnectedEndpoints()
	metrics.RelayConnected.Set(float64(len(connected)))
	p.notifyObservers(connected)
	return len(connected) > 0
}

// dialOne attempts one endpoint and records the outcome.
func (p *Pool) dialOne(ctx context.Context, url string) {
	conn, err := p.dial(ctx, url, p.logger)

	p.mu.Lock()
	ep, ok := p.endpoints[url]
	if !ok {
		// Torn down while dialing; discard the session.
		p.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	ep.lastChecked = time.Now()
	if err != nil {
		ep.status = StatusError
		ep.conn = nil
		p.mu.Unlock()
		metrics.RelayErrors.WithLabelValues(url).Inc()
		p.logError(url, err)
		return
	}
	if ep.conn != nil {
		ep.conn.Close()
	}
	ep.status = StatusConnected
	ep.conn = conn
	p.mu.Unlock()

	p.logger.Debugw("Relay connected", "url", url)
}

// Reconnect is rate-limited to one invocation per configured interval. It
// drops all current endpoints and retries with a shuffled subset of the
// secondary/backup/community groups, diversifying away from endpoints that
// may be uniformly failing. A second total failure escalates to the full
// union of every known group.
func (p *Pool) Reconnect(ctx context.Context) bool {
	if !p.limiter.Allow() {
		p.logger.Debugw("Reconnect suppressed by rate limit")
		return p.ConnectedCount() > 0
	}

	p.logger.Infow("Reconnecting relay pool")
	p.teardown()

	fallback := append([]string{}, p.cfg.Secondary...)
	fallback = append(fallback, p.cfg.Backup...)
	fallback = append(fallback, p.cfg.Community...)
	p.mu.Lock()
	p.rng.Shuffle(len(fallback), func(i, j int) {
		fallback[i], fallback[j] = fallback[j], fallback[i]
	})
	p.mu.Unlock()

	p.register(pickFirst(fallback, p.cfg.InitialEndpoints))
	if p.Connect(ctx) {
		return true
	}

	// Last resort: everything we know about.
	p.logger.Warnw("Fallback relays unreachable, trying full endpoint union")
	p.register(p.cfg.AllGroups())
	return p.Connect(ctx)
}

// ConnectedEndpoints returns a point-in-time snapshot of connected URLs,
// sorted for stable output. If the internal table has grown past the
// configured bound it returns empty rather than trusting corrupt state.
func (p *Pool) ConnectedEndpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.MaxTrackedEndpoints > 0 && len(p.endpoints) > p.cfg.MaxTrackedEndpoints {
		p.logger.Warnw("Endpoint table oversized, returning empty snapshot",
			"size", len(p.endpoints),
			"max", p.cfg.MaxTrackedEndpoints,
		)
		return nil
	}

	var urls []string
	for url, ep := range p.endpoints {
		if ep.status == StatusConnected {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	return urls
}

// ConnectedCount returns the number of currently connected endpoints.
func (p *Pool) ConnectedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, ep := range p.endpoints {
		if ep.status == StatusConnected {
			n++
		}
	}
	return n
}

// Conns returns the live sessions for querying. The snapshot may go stale;
// callers treat per-session errors as absence of data, never as failure.
func (p *Pool) Conns() []Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	var conns []Conn
	for _, ep := range p.endpoints {
		if ep.status == StatusConnected && ep.conn != nil {
			conns = append(conns, ep.conn)
		}
	}
	return conns
}

// Publish sends an event to every connected endpoint and returns how many
// accepted it.
func (p *Pool) Publish(ctx context.Context, publish func(ctx context.Context, c Conn) error) int {
	accepted := 0
	for _, conn := range p.Conns() {
		if err := publish(ctx, conn); err != nil {
			p.logError(conn.URL(), err)
			continue
		}
		accepted++
	}
	return accepted
}

// OnStatusUpdate registers an observer for connected-set changes and returns
// its unsubscribe function. A panicking observer never prevents the others
// from being notified.
func (p *Pool) OnStatusUpdate(fn func(connected []string)) func() {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// Run is the background health monitor: every tick it re-derives endpoint
// statuses (pinging live sessions, re-dialing dead ones) and notifies
// observers with the fresh connected set. This is how consumers discover
// that connectivity resumed without polling.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debugw("Health monitor stopping")
			p.teardown()
			return
		case <-ticker.C:
			p.healthCheck(ctx)
		}
	}
}

func (p *Pool) healthCheck(ctx context.Context) {
	p.mu.Lock()
	var live []Conn
	var dead []string
	for url, ep := range p.endpoints {
		switch ep.status {
		case StatusConnected:
			live = append(live, ep.conn)
		default:
			dead = append(dead, url)
		}
		ep.lastChecked = time.Now()
	}
	p.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	for _, conn := range live {
		if err := conn.Ping(pingCtx); err != nil {
			p.logError(conn.URL(), err)
			conn.Close()
			p.markDisconnected(conn.URL())
		}
	}

	var wg sync.WaitGroup
	for _, url := range dead {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			p.dialOne(pingCtx, url)
		}(url)
	}
	wg.Wait()

	connected := p.ConnectedEndpoints()
	metrics.RelayConnected.Set(float64(len(connected)))
	p.notifyObservers(connected)
}

func (p *Pool) markDisconnected(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ep, ok := p.endpoints[url]; ok {
		ep.status = StatusDisconnected
		ep.conn = nil
	}
}

// register adds endpoints to the tracked set without connecting them.
func (p *Pool) register(urls []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, url := range urls {
		if p.cfg.MaxTrackedEndpoints > 0 && len(p.endpoints) >= p.cfg.MaxTrackedEndpoints {
			return
		}
		if _, exists := p.endpoints[url]; !exists {
			p.endpoints[url] = &endpoint{url: url, status: StatusDisconnected}
		}
	}
}

// teardown closes every session and forgets all endpoints.
func (p *Pool) teardown() {
	p.mu.Lock()
	eps := p.endpoints
	p.endpoints = make(map[string]*endpoint)
	p.mu.Unlock()

	for _, ep := range eps {
		if ep.conn != nil {
			ep.conn.Close()
		}
	}
}

// Close shuts the pool down.
func (p *Pool) Close() {
	p.teardown()
	metrics.RelayConnected.Set(0)
}

func (p *Pool) notifyObservers(connected []string) {
	p.mu.Lock()
	fns := make([]func([]string), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Warnw("Status observer panicked", "panic", r)
				}
			}()
			fn(connected)
		}()
	}
}

// logError logs one endpoint failure, throttled per endpoint+message pair.
func (p *Pool) logError(url string, err error) {
	if p.throttle.Allow(url, err.Error()) {
		p.logger.Warnw("Relay endpoint error", "url", url, "error", err.Error())
	}
}

func pickFirst(urls []string, n int) []string {
	if n <= 0 || n > len(urls) {
		n = len(urls)
	}
	return append([]string{}, urls[:n]...)
}
