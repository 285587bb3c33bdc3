// Package signaling forwards opaque WebRTC negotiation payloads between the
// two participants of an active call.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"callhub/internal/calls"
	"callhub/internal/events"
)

var (
	ErrSessionNotActive = errors.New("signaling: session not active")
	ErrEmptyPayload     = errors.New("signaling: empty payload")
	ErrInvalidMedia     = errors.New("signaling: media kind must be audio or video")
)

// Sessions is the call manager surface the relay gates on.
type Sessions interface {
	Session(ctx context.Context, callID string) (calls.Session, error)
}

// Sender pushes events to every live connection of a user.
type Sender interface {
	SendToUser(userID string, ev events.Event) int
}

type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

type Relay struct {
	sessions Sessions
	sender   Sender
	log      *slog.Logger
}

func NewRelay(sessions Sessions, sender Sender, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{sessions: sessions, sender: sender, log: log}
}

func (r *Relay) RelayOffer(ctx context.Context, callID, fromUserID string, sdp json.RawMessage) error {
	return r.forward(ctx, callID, fromUserID, events.WebRTCOffer, sdp, nil)
}

func (r *Relay) RelayAnswer(ctx context.Context, callID, fromUserID string, sdp json.RawMessage) error {
	return r.forward(ctx, callID, fromUserID, events.WebRTCAnswer, sdp, nil)
}

func (r *Relay) RelayIceCandidate(ctx context.Context, callID, fromUserID string, candidate json.RawMessage) error {
	return r.forward(ctx, callID, fromUserID, events.WebRTCCandidate, nil, candidate)
}

// RelayMediaToggle tells the peer that fromUserID switched a track on or off.
func (r *Relay) RelayMediaToggle(ctx context.Context, callID, fromUserID string, kind MediaKind, enabled bool) error {
	var name string
	switch kind {
	case MediaVideo:
		name = events.PeerVideoToggle
	case MediaAudio:
		name = events.PeerAudioToggle
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMedia, kind)
	}

	peer, err := r.gate(ctx, callID, fromUserID)
	if err != nil {
		return err
	}
	r.sender.SendToUser(peer, events.New(name, events.MediaTogglePayload{
		CallID:  callID,
		UserID:  fromUserID,
		Enabled: enabled,
	}))
	return nil
}

func (r *Relay) forward(ctx context.Context, callID, fromUserID, name string, sdp, candidate json.RawMessage) error {
	if len(sdp) == 0 && len(candidate) == 0 {
		return ErrEmptyPayload
	}
	peer, err := r.gate(ctx, callID, fromUserID)
	if err != nil {
		return err
	}
	n := r.sender.SendToUser(peer, events.New(name, events.SignalPayload{
		CallID:    callID,
		From:      fromUserID,
		SDP:       sdp,
		Candidate: candidate,
	}))
	if n == 0 {
		r.log.Debug("signal dropped, peer has no connections", "call_id", callID, "event", name, "peer_id", peer)
	}
	return nil
}

// gate resolves the peer of fromUserID if the session is active and
// fromUserID takes part in it.
func (r *Relay) gate(ctx context.Context, callID, fromUserID string) (string, error) {
	s, err := r.sessions.Session(ctx, callID)
	if errors.Is(err, calls.ErrNotFound) {
		return "", ErrSessionNotActive
	}
	if err != nil {
		return "", err
	}
	if !s.Status.Active() {
		return "", ErrSessionNotActive
	}
	if !s.IsParticipant(fromUserID) {
		r.log.Warn("signal from non-participant", "call_id", callID, "user_id", fromUserID)
		return "", calls.ErrUnauthorized
	}
	return s.Peer(fromUserID), nil
}
