package nostr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mostrod/pkg/logger"
)

const (
	pingInterval     = 50 * time.Second // keepalive cadence
	readTimeout      = 90 * time.Second // ~2 missed pings triggers reconnect
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// Filter is a Nostr REQ filter (NIP-01).
type Filter struct {
	IDs     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Tags    map[string][]string `json:"-"`
	Since   *int64              `json:"since,omitempty"`
	Until   *int64              `json:"until,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
}

// MarshalJSON flattens Tags into the "#<letter>" keys NIP-01 filters use
// for tag-based queries (the order book subscription filters by "#d").
func (f Filter) MarshalJSON() ([]byte, error) {
	type alias Filter
	b, err := json.Marshal(alias(f))
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}
	if len(f.Tags) == 0 {
		return b, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}
	for k, v := range f.Tags {
		tagged, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal filter tag %q: %w", k, err)
		}
		raw["#"+k] = tagged
	}
	return json.Marshal(raw)
}

// AckResult is the relay's OK response to a published event.
type AckResult struct {
	EventID  string
	Accepted bool
	Message  string
}

// RelayConn manages a single relay's websocket connection: connect,
// subscribe, publish, and reconnect with exponential backoff plus a
// keepalive ping loop. Grounded on the exchange websocket feed pattern
// used for market-data connections elsewhere in the retrieved pack
// (connect/read loop, subscription replay on reconnect, ping goroutine,
// mutex-guarded writes) and adapted from a typed financial-market feed to
// an untyped relay event stream.
type RelayConn struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[string][]Filter

	eventCh  chan *Event
	ackCh    chan AckResult
	noticeCh chan string
}

func NewRelayConn(url string) *RelayConn {
	return &RelayConn{
		url:      url,
		subs:     make(map[string][]Filter),
		eventCh:  make(chan *Event, eventBufferSize),
		ackCh:    make(chan AckResult, 64),
		noticeCh: make(chan string, 64),
	}
}

func (r *RelayConn) URL() string { return r.url }

// Events returns a read-only channel of events received across every
// active subscription on this relay.
func (r *RelayConn) Events() <-chan *Event { return r.eventCh }

// Acks returns a read-only channel of OK responses to published events.
func (r *RelayConn) Acks() <-chan AckResult { return r.ackCh }

// Notices returns a read-only channel of relay NOTICE messages.
func (r *RelayConn) Notices() <-chan string { return r.noticeCh }

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (r *RelayConn) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := r.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("relay disconnected, reconnecting",
			zap.String("url", r.url), zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Subscribe opens a REQ subscription and remembers it so a reconnect
// re-issues it automatically.
func (r *RelayConn) Subscribe(subID string, filters ...Filter) error {
	r.subsMu.Lock()
	r.subs[subID] = filters
	r.subsMu.Unlock()
	return r.writeREQ(subID, filters)
}

// Unsubscribe closes a subscription and forgets it.
func (r *RelayConn) Unsubscribe(subID string) error {
	r.subsMu.Lock()
	delete(r.subs, subID)
	r.subsMu.Unlock()
	return r.writeJSON([]any{"CLOSE", subID})
}

// Publish sends an EVENT frame.
func (r *RelayConn) Publish(event *Event) error {
	return r.writeJSON([]any{"EVENT", event})
}

// Close gracefully closes the connection.
func (r *RelayConn) Close() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RelayConn) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.url, err)
	}

	r.connMu.Lock()
	r.conn = conn
	r.connMu.Unlock()

	defer func() {
		r.connMu.Lock()
		conn.Close()
		r.conn = nil
		r.connMu.Unlock()
	}()

	if err := r.resubscribeAll(); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}

	logger.Info("relay connected", zap.String("url", r.url))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go r.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		r.dispatchMessage(msg)
	}
}

func (r *RelayConn) resubscribeAll() error {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	for subID, filters := range r.subs {
		if err := r.writeREQ(subID, filters); err != nil {
			return err
		}
	}
	return nil
}

func (r *RelayConn) writeREQ(subID string, filters []Filter) error {
	msg := make([]any, 0, len(filters)+2)
	msg = append(msg, "REQ", subID)
	for _, f := range filters {
		msg = append(msg, f)
	}
	return r.writeJSON(msg)
}

// dispatchMessage parses a relay frame: ["EVENT",subID,event],
// ["OK",eventID,accepted,message], ["NOTICE",message], ["EOSE",subID].
func (r *RelayConn) dispatchMessage(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) == 0 {
		logger.Debug("ignoring malformed relay frame", zap.String("url", r.url))
		return
	}

	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		logger.Debug("relay frame missing label", zap.String("url", r.url))
		return
	}

	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var evt Event
		if err := json.Unmarshal(frame[2], &evt); err != nil {
			logger.Error("unmarshal relay event", zap.Error(err))
			return
		}
		select {
		case r.eventCh <- &evt:
		default:
			logger.Warn("event channel full, dropping event", zap.String("id", evt.ID))
		}

	case "OK":
		if len(frame) < 4 {
			return
		}
		var (
			eventID  string
			accepted bool
			message  string
		)
		_ = json.Unmarshal(frame[1], &eventID)
		_ = json.Unmarshal(frame[2], &accepted)
		_ = json.Unmarshal(frame[3], &message)
		select {
		case r.ackCh <- AckResult{EventID: eventID, Accepted: accepted, Message: message}:
		default:
			logger.Warn("ack channel full, dropping OK", zap.String("id", eventID))
		}

	case "NOTICE":
		if len(frame) < 2 {
			return
		}
		var msg string
		_ = json.Unmarshal(frame[1], &msg)
		select {
		case r.noticeCh <- msg:
		default:
		}

	case "EOSE":
		// End of stored events for a subscription; no action needed, the
		// subscription stays open for live events.

	default:
		logger.Debug("unknown relay frame label", zap.String("label", label))
	}
}

func (r *RelayConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.writeMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("relay ping failed", zap.String("url", r.url), zap.Error(err))
				return
			}
		}
	}
}

func (r *RelayConn) writeJSON(v any) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == nil {
		return fmt.Errorf("relay %s not connected", r.url)
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return r.conn.WriteJSON(v)
}

func (r *RelayConn) writeMessage(msgType int, data []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == nil {
		return fmt.Errorf("relay %s not connected", r.url)
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return r.conn.WriteMessage(msgType, data)
}

// Pool fans a set of relay connections out as one logical transport:
// publishing broadcasts to every relay, and events from any relay surface
// on one merged channel (Nostr has no single source of truth, so the
// gateway treats the pool, not any one relay, as the authority).
type Pool struct {
	relays []*RelayConn
	events chan *Event
}

func NewPool(urls []string) *Pool {
	p := &Pool{events: make(chan *Event, eventBufferSize)}
	for _, u := range urls {
		p.relays = append(p.relays, NewRelayConn(u))
	}
	return p
}

// Run starts every relay connection and fans their events into Events().
// Blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, rc := range p.relays {
		wg.Add(2)
		go func(rc *RelayConn) {
			defer wg.Done()
			_ = rc.Run(ctx)
		}(rc)
		go func(rc *RelayConn) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-rc.Events():
					if !ok {
						return
					}
					select {
					case p.events <- evt:
					case <-ctx.Done():
						return
					}
				}
			}
		}(rc)
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) Events() <-chan *Event { return p.events }

// Publish broadcasts event to every relay in the pool; failures are
// logged per-relay rather than aborting the broadcast (one unreachable
// relay should never block delivery to the others).
func (p *Pool) Publish(event *Event) {
	for _, rc := range p.relays {
		if err := rc.Publish(event); err != nil {
			logger.Warn("publish to relay failed", zap.String("url", rc.URL()), zap.Error(err))
		}
	}
}

// Subscribe opens the same subscription on every relay in the pool.
func (p *Pool) Subscribe(subID string, filters ...Filter) {
	for _, rc := range p.relays {
		if err := rc.Subscribe(subID, filters...); err != nil {
			logger.Warn("subscribe on relay failed", zap.String("url", rc.URL()), zap.Error(err))
		}
	}
}
