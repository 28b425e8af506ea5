package pool

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	nostr "github.com/nbd-wtf/go-nostr"
)

// fakeRelay is an in-process relay speaking just enough of the wire
// protocol to exercise the pool: REQ answers stored events then EOSE,
// EVENT stores and broadcasts to matching live subscriptions, CLOSE drops
// the subscription. Publish handling can be switched to reject or stay
// silent to exercise failure paths.
type fakeRelay struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	stored  []*nostr.Event
	clients map[*fakeClient]struct{}

	rejectPublish bool
	silentPublish bool
}

type fakeClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    map[string][]nostr.Filter
}

func (c *fakeClient) send(frame []any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	r := &fakeRelay{
		t:       t,
		clients: make(map[*fakeClient]struct{}),
	}
	upgrader := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		client := &fakeClient{conn: conn, subs: make(map[string][]nostr.Filter)}
		r.mu.Lock()
		r.clients[client] = struct{}{}
		r.mu.Unlock()
		defer func() {
			r.mu.Lock()
			delete(r.clients, client)
			r.mu.Unlock()
			conn.Close()
		}()
		r.serve(client)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

// seed stores an event without broadcasting, as if it predated every
// connection.
func (r *fakeRelay) seed(events ...*nostr.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, events...)
}

// broadcast stores an event and pushes it to every live matching
// subscription.
func (r *fakeRelay) broadcast(evt *nostr.Event) {
	r.mu.Lock()
	r.stored = append(r.stored, evt)
	clients := make([]*fakeClient, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		r.mu.Lock()
		matching := make(map[string]struct{})
		for subID, filters := range c.subs {
			if matchesAny(filters, evt) {
				matching[subID] = struct{}{}
			}
		}
		r.mu.Unlock()
		for subID := range matching {
			_ = c.send([]any{"EVENT", subID, evt})
		}
	}
}

func (r *fakeRelay) serve(client *fakeClient) {
	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil || len(arr) < 1 {
			continue
		}
		var label string
		if err := json.Unmarshal(arr[0], &label); err != nil {
			continue
		}

		switch label {
		case "EVENT":
			var evt nostr.Event
			if len(arr) < 2 || json.Unmarshal(arr[1], &evt) != nil {
				continue
			}
			r.mu.Lock()
			reject, silent := r.rejectPublish, r.silentPublish
			r.mu.Unlock()
			if silent {
				continue
			}
			if reject {
				_ = client.send([]any{"OK", evt.ID, false, "blocked: test"})
				continue
			}
			r.broadcast(&evt)
			_ = client.send([]any{"OK", evt.ID, true, ""})

		case "REQ":
			if len(arr) < 3 {
				continue
			}
			var subID string
			if json.Unmarshal(arr[1], &subID) != nil {
				continue
			}
			filters := make([]nostr.Filter, 0, len(arr)-2)
			for _, raw := range arr[2:] {
				var f nostr.Filter
				if json.Unmarshal(raw, &f) == nil {
					filters = append(filters, f)
				}
			}
			r.mu.Lock()
			client.subs[subID] = filters
			stored := make([]*nostr.Event, len(r.stored))
			copy(stored, r.stored)
			r.mu.Unlock()
			for _, evt := range stored {
				if matchesAny(filters, evt) {
					_ = client.send([]any{"EVENT", subID, evt})
				}
			}
			_ = client.send([]any{"EOSE", subID})

		case "CLOSE":
			if len(arr) < 2 {
				continue
			}
			var subID string
			if json.Unmarshal(arr[1], &subID) != nil {
				continue
			}
			r.mu.Lock()
			delete(client.subs, subID)
			r.mu.Unlock()
		}
	}
}

func matchesAny(filters []nostr.Filter, evt *nostr.Event) bool {
	for i := range filters {
		if filters[i].Matches(evt) {
			return true
		}
	}
	return false
}
