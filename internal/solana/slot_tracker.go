package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// SlotTrackerConfig configures WebSocket slot tracking behavior.
type SlotTrackerConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultSlotTrackerConfig returns default slot tracker configuration.
func DefaultSlotTrackerConfig() SlotTrackerConfig {
	return SlotTrackerConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// SlotTracker follows the cluster's latest finalized (rooted) slot over a
// WebSocket rootSubscribe subscription, reconnecting with backoff on
// connection loss. Latest() is safe for concurrent readers and returns 0
// until the first notification arrives, in which case callers fall back to
// polling getSlot over HTTP.
type SlotTracker struct {
	endpoint string
	config   SlotTrackerConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	latest atomic.Int64
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewSlotTracker connects to the endpoint and starts tracking rooted slots.
func NewSlotTracker(ctx context.Context, endpoint string, config *SlotTrackerConfig, logger *log.Logger) (*SlotTracker, error) {
	cfg := DefaultSlotTrackerConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	t := &SlotTracker{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}

	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	t.wg.Add(1)
	go t.readLoop()

	return t, nil
}

// Latest returns the most recent rooted slot seen, or 0 before the first
// notification.
func (t *SlotTracker) Latest() int64 {
	return t.latest.Load()
}

// Close shuts down the tracker and its connection.
func (t *SlotTracker) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.done)

	t.connMu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.connMu.Unlock()

	t.wg.Wait()
	return nil
}

// connect dials the endpoint and issues rootSubscribe.
func (t *SlotTracker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	sub := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "rootSubscribe"}
	conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("rootSubscribe: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	return nil
}

// rootNotification is the server push for rootSubscribe: the result is the
// newly rooted slot number.
type rootNotification struct {
	Method string `json:"method"`
	Params struct {
		Result int64 `json:"result"`
	} `json:"params"`
}

func (t *SlotTracker) readLoop() {
	defer t.wg.Done()

	delay := t.config.ReconnectDelay
	for {
		select {
		case <-t.done:
			return
		default:
		}

		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if t.closed.Load() {
				return
			}
			t.logger.Printf("Slot tracker read error, reconnecting: %v", err)
			conn.Close()

			select {
			case <-t.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > t.config.MaxReconnectDelay {
				delay = t.config.MaxReconnectDelay
			}
			if err := t.connect(context.Background()); err != nil {
				t.logger.Printf("Slot tracker reconnect failed: %v", err)
			}
			continue
		}
		delay = t.config.ReconnectDelay

		var note rootNotification
		if err := json.Unmarshal(msg, &note); err != nil || note.Method != "rootNotification" {
			continue
		}
		if slot := note.Params.Result; slot > t.latest.Load() {
			t.latest.Store(slot)
		}
	}
}
