// Package gateway is the websocket transport: it admits connections, feeds
// each connection's frames through an ordered inbound queue, and routes them
// to the signaling core.
package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"callhub/internal/auth"
	"callhub/internal/calls"
	"callhub/internal/events"
	"callhub/internal/presence"
	"callhub/internal/registry"
	"callhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	Audit          Auditor
	Logger         *slog.Logger
}

// Hub ties the registry's presence edges to the presence tracker and call
// cleanup, and serves the websocket endpoint.
type Hub struct {
	reg        *registry.Registry
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	sendBuffer int
	audit      Auditor
	log        *slog.Logger
}

func NewHub(reg *registry.Registry, tracker *presence.Tracker, mgr *calls.Manager, d *Dispatcher, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	h := &Hub{
		reg:        reg,
		dispatcher: d,
		sendBuffer: opts.SendBuffer,
		audit:      opts.Audit,
		log:        opts.Logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	reg.OnOnline(tracker.UserOnline)
	reg.OnOffline(func(ctx context.Context, userID string) {
		tracker.UserOffline(ctx, userID)
		if res, ok := mgr.CleanupForDisconnectedUser(ctx, userID); ok {
			logger.From(ctx).Info("ended call of disconnected user",
				"call_id", res.CallID, "user_id", userID, "peer_id", res.OtherParticipant)
		}
	})
	return h
}

// ServeWS verifies the credential before upgrading so that a bad token is
// refused with 401 instead of an open-then-closed socket.
func (h *Hub) ServeWS(c *gin.Context) {
	userID, err := h.reg.Verify(c.Request.Context(), auth.BearerToken(c))
	if err != nil {
		logger.FromGin(c).Info("ws admission refused", "err", err)
		if h.audit != nil {
			if auditErr := h.audit.LogAuthFailure(c.Request.Context(), c.ClientIP(), err.Error()); auditErr != nil {
				logger.FromGin(c).Warn("audit append failed", "err", auditErr)
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "type": TypeAuthError})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromGin(c).Warn("ws upgrade failed", "err", err)
		return
	}
	h.serve(ws, userID, logger.FromGin(c))
}

func (h *Hub) serve(ws *websocket.Conn, userID string, base *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newClient(ws, h.sendBuffer, base.With("user_id", userID))
	go client.writePump()

	conn := h.reg.Register(ctx, userID, client)
	connLog := logger.ForConnection(base, conn.ID, userID)
	ctx = logger.With(ctx, connLog)
	connLog.Info("ws connected")

	_ = conn.Send(h.dispatcher.Connected(conn))

	inbound := make(chan events.Inbound, inboundQueue)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		// One consumer per connection keeps that client's events in order.
		for in := range inbound {
			h.dispatcher.Handle(ctx, conn, in)
		}
	}()

	client.readPump(inbound)
	<-drained
	client.close()

	h.reg.Remove(ctx, conn.ID)
	connLog.Info("ws disconnected")
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}
