package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"callhub/internal/calls"
	"callhub/internal/events"
	"callhub/internal/messages"
	"callhub/internal/notify"
	"callhub/internal/presence"
	"callhub/internal/registry"
	"callhub/internal/signaling"
	"callhub/pkg/logger"
)

type handlerFunc func(ctx context.Context, conn *registry.Connection, data []byte) error

// Auditor records security-relevant refusals. Implementations are best-effort.
type Auditor interface {
	LogAuthFailure(ctx context.Context, ip, message string) error
	LogUnauthorized(ctx context.Context, actorUserID, connID, inbound, message string) error
}

// Dispatcher routes inbound events by name to the owning component and turns
// business failures into error events for the originating connection.
type Dispatcher struct {
	reg      *registry.Registry
	calls    *calls.Manager
	relay    *signaling.Relay
	presence *presence.Tracker
	notifier *notify.Notifier
	messages *messages.Service
	audit    Auditor
	log      *slog.Logger

	routes map[string]handlerFunc
}

func NewDispatcher(
	reg *registry.Registry,
	mgr *calls.Manager,
	relay *signaling.Relay,
	tracker *presence.Tracker,
	notifier *notify.Notifier,
	msgs *messages.Service,
	log *slog.Logger,
) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		reg:      reg,
		calls:    mgr,
		relay:    relay,
		presence: tracker,
		notifier: notifier,
		messages: msgs,
		log:      log,
	}
	d.routes = map[string]handlerFunc{
		events.Setup:           d.setup,
		events.CallInitiate:    d.initiate,
		events.CallAccept:      d.accept,
		events.CallReject:      d.reject,
		events.CallEnd:         d.end,
		events.CallTimeout:     d.timeout,
		events.CallConnected:   d.connected,
		events.WebRTCOffer:     d.offer,
		events.WebRTCAnswer:    d.answer,
		events.WebRTCCandidate: d.candidate,
		events.CallToggleVideo: d.toggle(signaling.MediaVideo),
		events.CallToggleAudio: d.toggle(signaling.MediaAudio),
		events.TypingStart:     d.typingStart,
		events.TypingStop:      d.typingStop,
		events.MessageSend:     d.sendMessage,
		events.MessageRead:     d.readMessage,
		events.MessageReact:    d.react,
	}
	return d
}

// WithAudit records unauthorized commands to a.
func (d *Dispatcher) WithAudit(a Auditor) *Dispatcher {
	d.audit = a
	return d
}

// Handle processes one inbound event. Failures are reported to conn only and
// never escape to the transport.
func (d *Dispatcher) Handle(ctx context.Context, conn *registry.Connection, in events.Inbound) {
	h, ok := d.routes[in.Name]
	if !ok {
		logger.From(ctx).Debug("unknown event", "event", in.Name)
		return
	}
	err := h(ctx, conn, in.Data)
	if err == nil {
		return
	}

	l := logger.From(ctx)
	kind, _ := classify(err)
	switch kind {
	case TypeInternalError:
		l.Error("event failed", "event", in.Name, "err", err)
	case TypeUnauthorized:
		l.Warn("event rejected", "event", in.Name, "type", kind, "err", err)
		if d.audit != nil {
			if auditErr := d.audit.LogUnauthorized(ctx, conn.UserID, conn.ID, in.Name, err.Error()); auditErr != nil {
				l.Warn("audit append failed", "err", auditErr)
			}
		}
	default:
		l.Info("event rejected", "event", in.Name, "type", kind, "err", err)
	}
	if sendErr := conn.Send(errorEvent(in.Name, err)); sendErr != nil {
		l.Debug("error event not delivered", "event", in.Name, "err", sendErr)
	}
}

// Connected builds the admission payload for conn.
func (d *Dispatcher) Connected(conn *registry.Connection) events.Event {
	return events.New(events.Connected, events.ConnectedPayload{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		OnlineUsers:  d.reg.OnlineUsers(),
	})
}

/* ===================== PRESENCE ===================== */

func (d *Dispatcher) setup(_ context.Context, conn *registry.Connection, data []byte) error {
	var req setupReq
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.UserID != "" && req.UserID != conn.UserID {
		return errIdentityMismatch
	}
	return conn.Send(d.Connected(conn))
}

func (d *Dispatcher) typingStart(_ context.Context, conn *registry.Connection, data []byte) error {
	var req typingReq
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.peer() == conn.UserID {
		return errBadPayload
	}
	d.presence.SetTyping(conn.UserID, req.peer())
	return nil
}

func (d *Dispatcher) typingStop(_ context.Context, conn *registry.Connection, data []byte) error {
	var req typingReq
	if err := decode(data, &req); err != nil {
		return err
	}
	d.presence.ClearTyping(conn.UserID, req.peer())
	return nil
}

/* ===================== CALLS ===================== */

func (d *Dispatcher) initiate(ctx context.Context, conn *registry.Connection, data []byte) error {
	var req initiateReq
	if err := decode(data, &req); err != nil {
		return err
	}
	ct, err := calls.ParseCallType(req.CallType)
	if err != nil {
		return err
	}
	_, err = d.calls.Initiate(ctx, conn.UserID, req.ReceiverID, ct)
	return err
}

func (d *Dispatcher) accept(ctx context.Context, conn *registry.Connection, data []byte) error {
	ref, err := decodeCallRef(data)
	if err != nil {
		return err
	}
	_, err = d.calls.Accept(ctx, ref.CallID, conn.UserID)
	return err
}

func (d *Dispatcher) reject(ctx context.Context, conn *registry.Connection, data []byte) error {
	ref, err := decodeCallRef(data)
	if err != nil {
		return err
	}
	_, err = d.calls.Reject(ctx, ref.CallID, conn.UserID)
	return err
}

func (d *Dispatcher) end(ctx context.Context, conn *registry.Connection, data []byte) error {
	ref, err := decodeCallRef(data)
	if err != nil {
		return err
	}
	_, err = d.calls.End(ctx, ref.CallID, conn.UserID, calls.MissedReason(ref.Reason))
	return err
}

func (d *Dispatcher) timeout(ctx context.Context, conn *registry.Connection, data []byte) error {
	ref, err := decodeCallRef(data)
	if err != nil {
		return err
	}
	_, err = d.calls.ReportTimeout(ctx, ref.CallID, conn.UserID)
	if errors.Is(err, calls.ErrInvalidTransition) {
		// Advisory: the call was already answered, rejected or timed out.
		return nil
	}
	return err
}

func (d *Dispatcher) connected(ctx context.Context, conn *registry.Connection, data []byte) error {
	ref, err := decodeCallRef(data)
	if err != nil {
		return err
	}
	_, err = d.calls.MarkOngoing(ctx, ref.CallID, conn.UserID)
	if errors.Is(err, calls.ErrInvalidTransition) {
		// Both peers report connected; only the first promotes the call.
		if s, getErr := d.calls.Session(ctx, ref.CallID); getErr == nil && s.Status == calls.StatusOngoing {
			return nil
		}
	}
	return err
}

func decodeCallRef(data []byte) (callRef, error) {
	var ref callRef
	if err := decode(data, &ref); err != nil {
		return callRef{}, err
	}
	return ref, nil
}

/* ===================== SIGNALING ===================== */

func (d *Dispatcher) offer(ctx context.Context, conn *registry.Connection, data []byte) error {
	var req sdpReq
	if err := decode(data, &req); err != nil {
		return err
	}
	return d.relay.RelayOffer(ctx, req.CallID, conn.UserID, []byte(req.SDP))
}

func (d *Dispatcher) answer(ctx context.Context, conn *registry.Connection, data []byte) error {
	var req sdpReq
	if err := decode(data, &req); err != nil {
		return err
	}
	return d.relay.RelayAnswer(ctx, req.CallID, conn.UserID, []byte(req.SDP))
}

func (d *Dispatcher) candidate(ctx context.Context, conn *registry.Connection, data []byte) error {
	var req candidateReq
	if err := decode(data, &req); err != nil {
		return err
	}
	return d.relay.RelayIceCandidate(ctx, req.CallID, conn.UserID, []byte(req.Candidate))
}

func (d *Dispatcher) toggle(kind signaling.MediaKind) handlerFunc {
	return func(ctx context.Context, conn *registry.Connection, data []byte) error {
		var req toggleReq
		if err := decode(data, &req); err != nil {
			return err
		}
		return d.relay.RelayMediaToggle(ctx, req.CallID, conn.UserID, kind, req.Enabled)
	}
}

/* ===================== MESSAGES ===================== */

func (d *Dispatcher) sendMessage(ctx context.Context, conn *registry.Connection, data []byte) error {
	var req sendReq
	if err := decode(data, &req); err != nil {
		return err
	}
	m, err := d.messages.Send(ctx, conn.UserID, req.ReceiverID, req.Message.Content, messages.Kind(req.Message.Kind))
	if err != nil {
		return err
	}

	d.notifier.EchoSent(conn.UserID, m)
	if d.notifier.NotifyNewMessage(req.ReceiverID, m) == 0 {
		return nil
	}
	if err := d.messages.MarkDelivered(ctx, m.ID); err != nil {
		logger.From(ctx).Warn("mark delivered failed", "message_id", m.ID, "err", err)
		return nil
	}
	d.notifier.ForwardDelivered(m.ID, conn.UserID)
	return nil
}

func (d *Dispatcher) readMessage(ctx context.Context, conn *registry.Connection, data []byte) error {
	var req readReq
	if err := decode(data, &req); err != nil {
		return err
	}
	m, err := d.messages.MarkRead(ctx, req.MessageID, conn.UserID)
	if err != nil {
		return err
	}
	d.notifier.ForwardReadReceipt(m.ID, m.SenderID, conn.UserID)
	return nil
}

func (d *Dispatcher) react(ctx context.Context, conn *registry.Connection, data []byte) error {
	var req reactReq
	if err := decode(data, &req); err != nil {
		return err
	}
	m, err := d.messages.React(ctx, req.MessageID, conn.UserID, req.Emoji)
	if err != nil {
		return err
	}
	recipient := m.SenderID
	if conn.UserID == m.SenderID {
		recipient = m.ReceiverID
	}
	d.notifier.NotifyReaction(recipient, events.ReactionPayload{
		MessageID: m.ID,
		UserID:    conn.UserID,
		Emoji:     strings.TrimSpace(req.Emoji),
	})
	return nil
}
