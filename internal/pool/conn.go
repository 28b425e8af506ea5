package pool

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	clienterrors "github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/keys"
	"github.com/gestalt-social/gestalt/internal/logger"
	"github.com/gestalt-social/gestalt/internal/metrics"
)

const writeDeadline = 10 * time.Second

// relaySub is the per-relay leg of a subscription or query. The read loop
// pushes matching events into events; eose closes once after the relay
// signals end-of-stored-events; done closes when the leg is torn down.
type relaySub struct {
	events chan *nostr.Event
	eose   chan struct{}
	done   chan struct{}

	eoseOnce sync.Once
	doneOnce sync.Once
}

func newRelaySub(buffer int) *relaySub {
	return &relaySub{
		events: make(chan *nostr.Event, buffer),
		eose:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *relaySub) signalEOSE() { s.eoseOnce.Do(func() { close(s.eose) }) }
func (s *relaySub) close() { s.doneOnce.Do(func() { close(s.done) }) }

type okResult struct {
	accepted bool
	reason   string
}

// relayConn is one live websocket to a relay. Writes are serialized;
// inbound frames are routed by subscription id from a single read loop.
type relayConn struct {
	url  string
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	subs         map[string]*relaySub
	okWaiters    map[string]chan okResult
	closed       bool
	lastActivity time.Time

	// done closes when the read loop exits for any reason.
	done chan struct{}
}

func dialRelay(ctx context.Context, url string, dialTimeout, pingInterval time.Duration, log *zap.Logger) (*relayConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		metrics.DialFailures.WithLabelValues(url).Inc()
		return nil, clienterrors.WebSocketError("pool.dial", url, err)
	}

	rc := &relayConn{
		url:          url,
		conn:         conn,
		log:          log.With(zap.String("relay", url)),
		subs:         make(map[string]*relaySub),
		okWaiters:    make(map[string]chan okResult),
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		rc.touch()
		return nil
	})

	go rc.readLoop()
	if pingInterval > 0 {
		go rc.pingLoop(pingInterval)
	}

	metrics.ConnectedRelays.Inc()
	rc.log.Debug("Relay connected")
	return rc, nil
}

func (rc *relayConn) touch() {
	rc.mu.Lock()
	rc.lastActivity = time.Now()
	rc.mu.Unlock()
}

func (rc *relayConn) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

func (rc *relayConn) status() (subs int, last time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.subs), rc.lastActivity
}

// writeFrame marshals and sends one client frame. The write mutex keeps
// concurrent publishes and subscription management from interleaving frames.
func (rc *relayConn) writeFrame(frame []any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return clienterrors.Wrap(err, clienterrors.ErrorTypeInternal, "ENCODE_FAILED",
			"pool.write", "frame encoding").WithRelay(rc.url)
	}

	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	rc.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := rc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		rc.markClosed()
		return clienterrors.WebSocketError("pool.write", rc.url, err)
	}
	return nil
}

func (rc *relayConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rc.done:
			return
		case <-ticker.C:
			rc.writeMu.Lock()
			rc.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			err := rc.conn.WriteMessage(websocket.PingMessage, nil)
			rc.writeMu.Unlock()
			if err != nil {
				rc.markClosed()
				return
			}
		}
	}
}

func (rc *relayConn) readLoop() {
	defer rc.markClosed()
	for {
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			if !rc.isClosed() {
				rc.log.Debug("Relay read loop ended", zap.Error(err))
			}
			return
		}
		rc.touch()

		msg, err := parseServerMessage(data)
		if err != nil {
			rc.log.Warn("Dropping malformed relay frame", zap.Error(err))
			continue
		}
		rc.dispatch(msg)
	}
}

func (rc *relayConn) dispatch(msg *serverMessage) {
	switch msg.label {
	case labelEvent:
		rc.dispatchEvent(msg.subID, msg.event)

	case labelEOSE:
		rc.mu.Lock()
		sub := rc.subs[msg.subID]
		rc.mu.Unlock()
		if sub != nil {
			sub.signalEOSE()
		}

	case labelOK:
		rc.mu.Lock()
		waiter := rc.okWaiters[msg.eventID]
		delete(rc.okWaiters, msg.eventID)
		rc.mu.Unlock()
		if waiter != nil {
			waiter <- okResult{accepted: msg.accepted, reason: msg.reason}
		}

	case labelNotice:
		rc.log.Info("Relay notice", zap.String("message", msg.notice))

	case labelClosed:
		rc.mu.Lock()
		sub := rc.subs[msg.subID]
		delete(rc.subs, msg.subID)
		rc.mu.Unlock()
		if sub != nil {
			rc.log.Warn("Relay closed subscription",
				zap.String("sub_id", msg.subID),
				zap.String("reason", msg.reason))
			sub.signalEOSE()
			sub.close()
		}
	}
}

func (rc *relayConn) dispatchEvent(subID string, evt *nostr.Event) {
	if evt == nil {
		return
	}
	if err := keys.VerifyEvent(evt); err != nil {
		metrics.InvalidSignatures.Inc()
		rc.log.Warn("Dropping event with invalid signature",
			zap.String("event_id", logger.Abbrev(evt.ID)),
			zap.Error(err))
		return
	}

	rc.mu.Lock()
	sub := rc.subs[subID]
	rc.mu.Unlock()
	if sub == nil {
		return
	}

	metrics.RecordEventReceived(rc.url, int64(evt.CreatedAt))
	select {
	case sub.events <- evt:
	case <-sub.done:
	default:
		// Slow consumer: dropping is preferable to stalling the read
		// loop and every other subscription on this relay.
		rc.log.Warn("Subscription buffer full, dropping event",
			zap.String("sub_id", subID),
			zap.String("event_id", logger.Abbrev(evt.ID)))
	}
}

// openSub registers a subscription leg and sends REQ.
func (rc *relayConn) openSub(subID string, filters nostr.Filters, buffer int) (*relaySub, error) {
	sub := newRelaySub(buffer)
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil, clienterrors.ErrSubscriptionClosed
	}
	rc.subs[subID] = sub
	rc.mu.Unlock()

	if err := rc.writeFrame(reqFrame(subID, filters)); err != nil {
		rc.closeSub(subID)
		return nil, err
	}
	return sub, nil
}

// closeSub unregisters a leg and tells the relay to stop. Safe to call on
// a dead connection.
func (rc *relayConn) closeSub(subID string) {
	rc.mu.Lock()
	sub := rc.subs[subID]
	delete(rc.subs, subID)
	dead := rc.closed
	rc.mu.Unlock()

	if sub != nil {
		sub.close()
	}
	if !dead {
		_ = rc.writeFrame(closeFrame(subID))
	}
}

// awaitOK registers interest in the OK frame for eventID. The returned
// channel receives at most one result; callers must either drain it or
// call forgetOK.
func (rc *relayConn) awaitOK(eventID string) (<-chan okResult, error) {
	ch := make(chan okResult, 1)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return nil, clienterrors.ErrSubscriptionClosed
	}
	rc.okWaiters[eventID] = ch
	return ch, nil
}

func (rc *relayConn) forgetOK(eventID string) {
	rc.mu.Lock()
	delete(rc.okWaiters, eventID)
	rc.mu.Unlock()
}

// markClosed tears the connection down exactly once: the socket closes,
// every subscription leg sees EOSE plus done, and pending publishes
// unblock via the done channel.
func (rc *relayConn) markClosed() {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	subs := rc.subs
	rc.subs = make(map[string]*relaySub)
	rc.okWaiters = make(map[string]chan okResult)
	rc.mu.Unlock()

	rc.conn.Close()
	close(rc.done)
	for _, sub := range subs {
		sub.signalEOSE()
		sub.close()
	}
	metrics.ConnectedRelays.Dec()
	rc.log.Debug("Relay connection closed")
}
