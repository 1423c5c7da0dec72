package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flashpath/arbbot/internal/gas"
)

const (
	// headWriteWait is the time allowed to write a frame to the node.
	headWriteWait = 10 * time.Second
	// headPongWait is the time allowed between pongs before the connection
	// is considered dead.
	headPongWait = 60 * time.Second
	// headPingPeriod must be shorter than headPongWait.
	headPingPeriod = (headPongWait * 9) / 10

	headReconnectDelay    = 2 * time.Second
	headMaxReconnectDelay = 60 * time.Second
)

// HeadHandler is invoked for every new chain head, in subscription order.
type HeadHandler func(ctx context.Context, head gas.Head)

// HeadListener subscribes to the node's newHeads feed over WebSocket and
// invokes the handler per head. It reconnects with exponential backoff.
type HeadListener struct {
	wsURL     string
	handshake time.Duration
	onHead    HeadHandler
	logger    *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewHeadListener(wsURL string, handshake time.Duration, onHead HeadHandler, logger *slog.Logger) *HeadListener {
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	return &HeadListener{
		wsURL:     wsURL,
		handshake: handshake,
		onHead:    onHead,
		logger:    logger.With("component", "head_listener"),
		done:      make(chan struct{}),
	}
}

// Run connects and consumes heads until ctx is cancelled or Close is called.
func (l *HeadListener) Run(ctx context.Context) error {
	delay := headReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		default:
		}

		err := l.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("head subscription dropped, reconnecting",
			"delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > headMaxReconnectDelay {
			delay = headMaxReconnectDelay
		}
	}
}

// Close stops the listener.
func (l *HeadListener) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *HeadListener) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: l.handshake}
	conn, _, err := dialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		return fmt.Errorf("chain: dialing %s: %w", l.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(headPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(headPongWait))
		return nil
	})

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []any{"newHeads"},
	}
	conn.SetWriteDeadline(time.Now().Add(headWriteWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("chain: subscribing to newHeads: %w", err)
	}

	// The node's pings stop when the connection dies; ours keep the read
	// deadline honest in the other direction.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go l.pingLoop(conn, pingDone)

	l.logger.Info("subscribed to new heads", "url", l.wsURL)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("chain: reading head frame: %w", err)
		}
		if head, ok := parseHeadFrame(message); ok {
			l.onHead(ctx, head)
		}
	}
}

func (l *HeadListener) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(headPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-l.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(headWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// headFrame is the eth_subscription envelope for newHeads notifications.
type headFrame struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Number        string `json:"number"`
			BaseFeePerGas string `json:"baseFeePerGas"`
			GasUsed       string `json:"gasUsed"`
			GasLimit      string `json:"gasLimit"`
		} `json:"result"`
	} `json:"params"`
}

func parseHeadFrame(raw []byte) (gas.Head, bool) {
	var frame headFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Method != "eth_subscription" {
		return gas.Head{}, false
	}
	number, ok := parseHexUint(frame.Params.Result.Number)
	if !ok {
		return gas.Head{}, false
	}
	baseFee, _ := parseHexBig(frame.Params.Result.BaseFeePerGas)
	gasUsed, _ := parseHexUint(frame.Params.Result.GasUsed)
	gasLimit, _ := parseHexUint(frame.Params.Result.GasLimit)
	ratio := 0.0
	if gasLimit > 0 {
		ratio = float64(gasUsed) / float64(gasLimit)
	}
	return gas.Head{
		Number:   number,
		BaseFee:  baseFee,
		GasRatio: ratio,
		Seen:     time.Now(),
	}, true
}

func parseHexUint(s string) (uint64, bool) {
	b, ok := parseHexBig(s)
	if !ok || !b.IsUint64() {
		return 0, false
	}
	return b.Uint64(), true
}

func parseHexBig(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, false
	}
	b, ok := new(big.Int).SetString(s, 16)
	return b, ok
}
