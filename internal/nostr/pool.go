package nostr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the time allowed to write a message to a relay.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// RelayPool maintains websocket connections to a set of nostr relays. Each
// relay is dialed and re-dialed independently with exponential backoff, so a
// flapping relay never stalls the others.
type RelayPool struct {
	logger *zap.Logger
	urls   []string

	mu     sync.RWMutex
	conns  map[string]*websocket.Conn
	subID  string
	closed bool
}

// NewRelayPool creates a pool for the given relay URLs.
func NewRelayPool(urls []string, logger *zap.Logger) *RelayPool {
	return &RelayPool{
		logger: logger.Named("relaypool"),
		urls:   urls,
		conns:  make(map[string]*websocket.Conn),
		subID:  fmt.Sprintf("bot-%d", time.Now().Unix()),
	}
}

// Subscribe starts one maintenance goroutine per relay. Matching events are
// delivered to out until ctx is cancelled. The out channel is never closed
// by the pool.
func (p *RelayPool) Subscribe(ctx context.Context, kinds []int, out chan<- Event) {
	for _, url := range p.urls {
		go p.maintain(ctx, url, kinds, out)
	}
}

// maintain dials the relay, subscribes, and pumps events until ctx is done,
// reconnecting with backoff on any failure.
func (p *RelayPool) maintain(ctx context.Context, url string, kinds []int, out chan<- Event) {
	delay := reconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := p.dial(ctx, url, kinds)
		if err != nil {
			p.logger.Warn("Relay connection failed",
				zap.String("relay", url),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		delay = reconnectDelay
		p.logger.Info("Connected to relay", zap.String("relay", url))
		p.readLoop(ctx, url, conn, out)
		p.dropConn(url)
	}
}

func (p *RelayPool) dial(ctx context.Context, url string, kinds []int) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	req := []interface{}{"REQ", p.subID, map[string]interface{}{
		"kinds": kinds,
		"since": time.Now().Unix(),
	}}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("pool closed")
	}
	p.conns[url] = conn
	p.mu.Unlock()
	return conn, nil
}

// readLoop parses relay frames and forwards EVENT messages. It returns when
// the connection breaks or ctx is cancelled.
func (p *RelayPool) readLoop(ctx context.Context, url string, conn *websocket.Conn, out chan<- Event) {
	// The closer must not outlive this read loop, or every reconnect would
	// leave a goroutine parked on the subscription context.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	for {
		var frame []json.RawMessage
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("Relay read failed", zap.String("relay", url), zap.Error(err))
			}
			return
		}
		if len(frame) < 3 {
			continue
		}

		var msgType string
		if err := json.Unmarshal(frame[0], &msgType); err != nil || msgType != "EVENT" {
			continue
		}

		var ev Event
		if err := json.Unmarshal(frame[2], &ev); err != nil {
			p.logger.Debug("Malformed event from relay", zap.String("relay", url), zap.Error(err))
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Publish sends the event to every currently connected relay and returns the
// number of relays that accepted the write.
func (p *RelayPool) Publish(ev Event) int {
	raw, err := json.Marshal([]interface{}{"EVENT", ev})
	if err != nil {
		p.logger.Error("Failed to encode event", zap.Error(err))
		return 0
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	sent := 0
	for url, conn := range p.conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			p.logger.Warn("Publish to relay failed", zap.String("relay", url), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (p *RelayPool) dropConn(url string) {
	p.mu.Lock()
	if conn, ok := p.conns[url]; ok {
		conn.Close()
		delete(p.conns, url)
	}
	p.mu.Unlock()
}

// Close tears down every connection. Maintenance goroutines exit via their
// context.
func (p *RelayPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for url, conn := range p.conns {
		conn.Close()
		delete(p.conns, url)
	}
}
