package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"callhub/internal/events"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10 // SDP blobs stay well below this
	inboundQueue   = 32
)

// ErrSlowConsumer is returned when a connection's outbound buffer is full.
// The connection is closed; the client is expected to reconnect and resync.
var ErrSlowConsumer = errors.New("gateway: slow consumer")

// wsClient owns one websocket. Writes happen only on the write pump; Send
// just enqueues, so fan-out to a stalled peer never blocks the caller.
type wsClient struct {
	conn *websocket.Conn
	out  chan []byte
	log  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, buffer int, log *slog.Logger) *wsClient {
	return &wsClient{
		conn: conn,
		out:  make(chan []byte, buffer),
		log:  log,
		done: make(chan struct{}),
	}
}

// Send implements events.Sink.
func (c *wsClient) Send(ev events.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return events.ErrSinkClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	case <-c.done:
		return events.ErrSinkClosed
	default:
		c.log.Warn("outbound buffer full, closing connection", "event", ev.Name)
		c.close()
		return ErrSlowConsumer
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump decodes frames into inbound until the socket fails or closes.
// It closes inbound on return.
func (c *wsClient) readPump(inbound chan<- events.Inbound) {
	defer close(inbound)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("ws read ended", "err", err)
			}
			return
		}

		var in events.Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Name == "" {
			_ = c.Send(events.New(events.CallError, events.ErrorPayload{Message: "Malformed frame", Type: TypeBadRequest}))
			continue
		}
		select {
		case inbound <- in:
		case <-c.done:
			return
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug("ws write failed", "err", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
