// Package pool maintains websocket connections to a set of Nostr relays and
// exposes the three primitives everything above it is built from: publish an
// event, query stored events, and subscribe to a live stream. Connections are
// dialed lazily, shared across callers, and replaced transparently after
// failures.
package pool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/config"
	"github.com/gestalt-social/gestalt/internal/domain"
	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/limiter"
	"github.com/gestalt-social/gestalt/internal/logger"
	"github.com/gestalt-social/gestalt/internal/metrics"
)

// Pool implements domain.EventSource across a mutable set of relays.
// Publish, Query, and Subscribe snapshot the relay list at call time, so
// AddRelay and RemoveRelay affect subsequent operations only.
type Pool struct {
	cfg config.ClientConfig
	log *zap.Logger

	mu     sync.RWMutex
	relays []string
	conns  map[string]*relayConn
	dials  *limiter.DialLimiter
	closed bool

	subSeq atomic.Uint64
}

// RelayStatus is a point-in-time snapshot of one configured relay.
type RelayStatus struct {
	URL          string    `json:"url"`
	Connected    bool      `json:"connected"`
	ActiveSubs   int       `json:"active_subs"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

func New(cfg config.ClientConfig, urls []string) *Pool {
	p := &Pool{
		cfg:   cfg,
		log:   logger.New("pool"),
		conns: make(map[string]*relayConn),
		dials: limiter.NewDialLimiter(cfg.MaxDialsPerMinute),
	}
	for _, u := range urls {
		if err := p.AddRelay(u); err != nil {
			p.log.Warn("Skipping invalid relay URL", zap.String("url", u), zap.Error(err))
		}
	}
	return p
}

// Relays returns the configured relay URLs in order.
func (p *Pool) Relays() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.relays))
	copy(out, p.relays)
	return out
}

// AddRelay adds a relay to the set. Adding an already-present URL is a
// no-op. The connection is established on first use, not here.
func (p *Pool) AddRelay(url string) error {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if !strings.HasPrefix(url, "wss://") && !strings.HasPrefix(url, "ws://") {
		return clienterrors.ValidationError("pool.add_relay",
			fmt.Sprintf("relay URL must use ws:// or wss://: %q", url))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.relays {
		if existing == url {
			return nil
		}
	}
	p.relays = append(p.relays, url)
	return nil
}

// RemoveRelay drops a relay and closes its connection. In-flight
// operations that already snapshotted the relay finish against it.
func (p *Pool) RemoveRelay(url string) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")

	p.mu.Lock()
	for i, existing := range p.relays {
		if existing == url {
			p.relays = append(p.relays[:i], p.relays[i+1:]...)
			break
		}
	}
	conn := p.conns[url]
	delete(p.conns, url)
	p.mu.Unlock()

	p.dials.Forget(url)
	if conn != nil {
		conn.markClosed()
	}
}

// Status reports connection state for every configured relay.
func (p *Pool) Status() []RelayStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]RelayStatus, 0, len(p.relays))
	for _, url := range p.relays {
		st := RelayStatus{URL: url}
		if conn, ok := p.conns[url]; ok && !conn.isClosed() {
			st.Connected = true
			st.ActiveSubs, st.LastActivity = conn.status()
		}
		out = append(out, st)
	}
	return out
}

// Close tears down every connection. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := p.conns
	p.conns = make(map[string]*relayConn)
	p.mu.Unlock()

	for _, conn := range conns {
		conn.markClosed()
	}
	p.log.Info("Relay pool closed")
}

// getConn returns the live connection for url, dialing if needed. Dials
// are rate-limited per relay so a flapping relay cannot burn the process
// in a reconnect loop.
func (p *Pool) getConn(ctx context.Context, url string) (*relayConn, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, clienterrors.ErrSubscriptionClosed
	}
	conn := p.conns[url]
	p.mu.RUnlock()
	if conn != nil && !conn.isClosed() {
		return conn, nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, clienterrors.ErrSubscriptionClosed
	}
	if conn = p.conns[url]; conn != nil && !conn.isClosed() {
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	if !p.dials.Allow(url) {
		metrics.DialFailures.WithLabelValues(url).Inc()
		return nil, clienterrors.WebSocketError("pool.dial", url, fmt.Errorf("dial rate limit exceeded"))
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()
	conn, err := dialRelay(dialCtx, url, p.cfg.DialTimeout, p.cfg.PingInterval, p.log)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.markClosed()
		return nil, clienterrors.ErrSubscriptionClosed
	}
	if existing := p.conns[url]; existing != nil && !existing.isClosed() {
		// Lost a dial race; keep the winner.
		p.mu.Unlock()
		conn.markClosed()
		return existing, nil
	}
	p.conns[url] = conn
	p.mu.Unlock()
	return conn, nil
}

func (p *Pool) nextSubID() string {
	return fmt.Sprintf("gestalt-%d", p.subSeq.Add(1))
}

// Publish sends a signed event to every configured relay and resolves as
// soon as one relay acknowledges acceptance. The result carries whatever
// per-relay outcomes arrived before resolution; relays still in flight at
// that point are abandoned.
func (p *Pool) Publish(ctx context.Context, evt *nostr.Event) (domain.PublishResult, error) {
	relays := p.Relays()
	result := domain.PublishResult{}
	if len(relays) == 0 {
		return result, clienterrors.ErrNoRelays
	}

	metrics.PublishAttempts.Inc()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	acks := make(chan domain.RelayAck, len(relays))
	for _, url := range relays {
		go func(url string) {
			acks <- p.publishOne(ctx, url, evt)
		}(url)
	}

	for range relays {
		var ack domain.RelayAck
		select {
		case ack = <-acks:
		case <-ctx.Done():
			p.log.Warn("Publish timed out",
				zap.String("event_id", logger.Abbrev(evt.ID)),
				zap.Int("acks_received", len(result.Relays)))
			metrics.PublishAcks.WithLabelValues("timeout").Inc()
			return result, clienterrors.Wrap(ctx.Err(), clienterrors.ErrorTypeTimeout,
				"PUBLISH_TIMEOUT", "pool.publish", "publish window elapsed").WithKind(evt.Kind)
		}

		result.Relays = append(result.Relays, ack)
		if ack.OK {
			result.Acked = true
			metrics.PublishAcks.WithLabelValues("accepted").Inc()
			metrics.RecordPublishOK()
			p.log.Debug("Event accepted",
				zap.String("event_id", logger.Abbrev(evt.ID)),
				zap.String("relay", ack.URL),
				zap.Int("kind", evt.Kind))
			return result, nil
		}
	}

	metrics.PublishAcks.WithLabelValues("rejected").Inc()
	p.log.Warn("No relay accepted event",
		zap.String("event_id", logger.Abbrev(evt.ID)),
		zap.Int("kind", evt.Kind),
		zap.Int("relays", len(relays)))
	return result, clienterrors.PublishError("pool.publish", evt.Kind, len(relays))
}

func (p *Pool) publishOne(ctx context.Context, url string, evt *nostr.Event) domain.RelayAck {
	ack := domain.RelayAck{URL: url}

	conn, err := p.getConn(ctx, url)
	if err != nil {
		ack.Err = err
		return ack
	}
	okCh, err := conn.awaitOK(evt.ID)
	if err != nil {
		ack.Err = err
		return ack
	}
	defer conn.forgetOK(evt.ID)

	if err := conn.writeFrame(eventFrame(evt)); err != nil {
		ack.Err = err
		return ack
	}

	select {
	case res := <-okCh:
		ack.OK = res.accepted
		ack.Reason = res.reason
	case <-conn.done:
		ack.Err = clienterrors.WebSocketError("pool.publish", url, fmt.Errorf("connection lost before OK"))
	case <-ctx.Done():
		ack.Err = ctx.Err()
	}
	return ack
}

// Query fetches stored events matching the filters from every relay,
// merges the streams with id-level dedup, and returns once every relay
// has signaled end-of-stored-events or the query timeout expires.
// Unreachable relays contribute nothing; the merged set from the relays
// that did answer is still returned.
func (p *Pool) Query(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	relays := p.Relays()
	if len(relays) == 0 {
		p.log.Warn("Query with no relays configured")
		return nil, nil
	}
	if len(filters) == 0 {
		return nil, clienterrors.ValidationError("pool.query", "query requires at least one filter")
	}

	metrics.Queries.Inc()
	start := time.Now()
	defer func() {
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	merged := make(chan *nostr.Event, p.cfg.SubscriptionBuffer)
	var wg sync.WaitGroup
	for _, url := range relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			p.queryOne(ctx, url, nostr.Filters(filters), merged)
		}(url)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	byID := make(map[string]*nostr.Event)
	for evt := range merged {
		if _, dup := byID[evt.ID]; dup {
			metrics.DuplicateEvents.Inc()
			continue
		}
		byID[evt.ID] = evt
	}

	out := make([]*nostr.Event, 0, len(byID))
	for _, evt := range byID {
		out = append(out, evt)
	}
	sortNewestFirst(out)
	return out, nil
}

func (p *Pool) queryOne(ctx context.Context, url string, filters nostr.Filters, merged chan<- *nostr.Event) {
	conn, err := p.getConn(ctx, url)
	if err != nil {
		p.log.Debug("Query skipping relay", zap.String("relay", url), zap.Error(err))
		return
	}

	subID := p.nextSubID()
	sub, err := conn.openSub(subID, filters, p.cfg.SubscriptionBuffer)
	if err != nil {
		p.log.Debug("Query REQ failed", zap.String("relay", url), zap.Error(err))
		return
	}
	defer conn.closeSub(subID)

	for {
		select {
		case evt := <-sub.events:
			select {
			case merged <- evt:
			case <-ctx.Done():
				return
			}
		case <-sub.eose:
			// Drain events that raced with EOSE.
			for {
				select {
				case evt := <-sub.events:
					select {
					case merged <- evt:
					case <-ctx.Done():
						return
					}
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// sortNewestFirst orders events by created_at descending; ties break
// toward the lexically smaller id so merged results are deterministic.
func sortNewestFirst(events []*nostr.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}

// subscription is a live cross-relay stream. One dispatcher goroutine
// invokes the callback, so handler invocations are serialized.
type subscription struct {
	id     string
	pool   *Pool
	legs   []subLeg
	quit   chan struct{}
	done   chan struct{}
	cancel sync.Once
}

type subLeg struct {
	conn  *relayConn
	subID string
	sub   *relaySub
}

func (s *subscription) Done() <-chan struct{} { return s.done }

// Cancel stops the stream. It does not return until the dispatcher has
// exited, so no callback runs after Cancel.
func (s *subscription) Cancel() {
	s.cancel.Do(func() {
		close(s.quit)
		for _, leg := range s.legs {
			leg.conn.closeSub(leg.subID)
		}
	})
	<-s.done
}

// Subscribe opens a long-lived subscription on every configured relay and
// invokes onEvent exactly once per distinct matching event. The callback
// runs on a single dispatcher goroutine. Relays that cannot be reached are
// skipped; Subscribe fails only when no relay leg could be opened.
func (p *Pool) Subscribe(ctx context.Context, filters nostr.Filters, onEvent func(*nostr.Event)) (domain.Subscription, error) {
	relays := p.Relays()
	if len(relays) == 0 {
		return nil, clienterrors.ErrNoRelays
	}
	if onEvent == nil {
		return nil, clienterrors.ValidationError("pool.subscribe", "subscription requires a handler")
	}

	s := &subscription{
		id:   p.nextSubID(),
		pool: p,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	for _, url := range relays {
		conn, err := p.getConn(ctx, url)
		if err != nil {
			p.log.Debug("Subscribe skipping relay", zap.String("relay", url), zap.Error(err))
			continue
		}
		legID := s.id + "-" + relaySuffix(url)
		sub, err := conn.openSub(legID, filters, p.cfg.SubscriptionBuffer)
		if err != nil {
			p.log.Debug("Subscribe REQ failed", zap.String("relay", url), zap.Error(err))
			continue
		}
		s.legs = append(s.legs, subLeg{conn: conn, subID: legID, sub: sub})
	}
	if len(s.legs) == 0 {
		close(s.done)
		return nil, clienterrors.ErrAllRelaysFailed
	}

	metrics.ActiveSubscriptions.Inc()
	go s.run(onEvent, newSeenCache(p.cfg.SeenCacheSize))
	p.log.Debug("Subscription opened",
		zap.String("sub_id", s.id),
		zap.Int("legs", len(s.legs)),
		zap.Int("filters", len(filters)))
	return s, nil
}

func (s *subscription) run(onEvent func(*nostr.Event), seen *seenCache) {
	defer func() {
		metrics.ActiveSubscriptions.Dec()
		close(s.done)
	}()

	merged := make(chan *nostr.Event, s.pool.cfg.SubscriptionBuffer)
	var wg sync.WaitGroup
	for _, leg := range s.legs {
		wg.Add(1)
		go func(leg subLeg) {
			defer wg.Done()
			for {
				select {
				case evt := <-leg.sub.events:
					select {
					case merged <- evt:
					case <-s.quit:
						return
					}
				case <-leg.sub.done:
					return
				case <-s.quit:
					return
				}
			}
		}(leg)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case evt, ok := <-merged:
			if !ok {
				return
			}
			if seen.seen(evt.ID) {
				metrics.DuplicateEvents.Inc()
				continue
			}
			onEvent(evt)
		case <-s.quit:
			return
		}
	}
}

func relaySuffix(url string) string {
	url = strings.TrimPrefix(url, "wss://")
	url = strings.TrimPrefix(url, "ws://")
	if i := strings.IndexAny(url, "/:"); i >= 0 {
		url = url[:i]
	}
	return url
}
