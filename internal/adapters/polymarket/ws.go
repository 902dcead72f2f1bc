package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWSMarketURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	defaultWSUserURL   = "wss://ws-subscriptions-clob.polymarket.com/ws/user"

	wsPingInterval     = 50 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsHandshakeTimeout = 10 * time.Second

	wsBaseDelay = time.Second
	wsMaxDelay  = 60 * time.Second
)

// reconnectDelay devuelve wsBaseDelay·2^retry con tope wsMaxDelay.
func reconnectDelay(retry int) time.Duration {
	if retry < 0 {
		return wsBaseDelay
	}
	if retry > 30 {
		return wsMaxDelay
	}
	d := wsBaseDelay * time.Duration(1<<retry)
	if d > wsMaxDelay {
		return wsMaxDelay
	}
	return d
}

// wsConn mantiene viva una conexión websocket: reconecta con backoff
// exponencial, envía PING de texto periódicamente y serializa las escrituras.
type wsConn struct {
	id        string
	url       string
	onConnect func() error
	onMessage func(msg []byte)

	pingInterval time.Duration
	readTimeout  time.Duration

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSConn(id, url string) *wsConn {
	return &wsConn{
		id:           id,
		url:          url,
		pingInterval: wsPingInterval,
		readTimeout:  wsReadTimeout,
	}
}

// run conecta y lee hasta que ctx se cancela.
func (w *wsConn) run(ctx context.Context) error {
	retry := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := w.connect(ctx); err != nil {
			delay := reconnectDelay(retry)
			retry++
			slog.Warn("polymarket: ws connect failed", "feed", w.id, "err", err, "retry", retry, "delay", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.process(ctx)
	}
}

func (w *wsConn) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if w.onConnect != nil {
		if err := w.onConnect(); err != nil {
			w.close()
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	slog.Info("polymarket: ws connected", "feed", w.id)
	return nil
}

func (w *wsConn) process(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			w.close()
		case <-done:
		}
	}()
	if w.pingInterval > 0 {
		go w.pingLoop(done)
	}

	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		if w.readTimeout > 0 {
			c.SetReadDeadline(time.Now().Add(w.readTimeout))
		}
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("polymarket: ws read error, reconnecting", "feed", w.id, "err", err)
			}
			w.close()
			return
		}
		if w.onMessage != nil {
			w.onMessage(msg)
		}
	}
}

func (w *wsConn) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := w.write(websocket.TextMessage, []byte("PING")); err != nil {
				slog.Warn("polymarket: ws ping failed", "feed", w.id, "err", err)
				w.close()
				return
			}
		}
	}
}

// connected indica si hay una conexión abierta.
func (w *wsConn) connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil
}

func (w *wsConn) writeJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("ws %s not connected", w.id)
	}
	return c.WriteJSON(v)
}

func (w *wsConn) write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("ws %s not connected", w.id)
	}
	return c.WriteMessage(msgType, data)
}

func (w *wsConn) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
