package gateway

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New()
)

var errBadPayload = errors.New("gateway: malformed payload")

// decode unmarshals an event's data into v and checks its validate tags.
// Missing data decodes to the zero value before validation.
func decode(raw []byte, v any) error {
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, v); err != nil {
			return errBadPayload
		}
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// Inbound payloads. Fields that only told older clients whom to address
// (receiverId, callerId, targetUserId on signaling events) are accepted and
// ignored: the peer is always derived from the session.

type setupReq struct {
	UserID string `json:"userId"`
}

// UnmarshalJSON accepts both "alice" and {"userId":"alice"}.
func (r *setupReq) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		r.UserID = s
		return nil
	}
	type plain setupReq
	return json.Unmarshal(b, (*plain)(r))
}

type initiateReq struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	CallType   string `json:"callType"`
}

type callRef struct {
	CallID string `json:"callId" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"omitempty,oneof=network_error"`
}

type sdpReq struct {
	CallID     string              `json:"callId" validate:"required"`
	SDP        jsoniter.RawMessage `json:"sdp"`
	ReceiverID string              `json:"receiverId,omitempty"`
	CallerID   string              `json:"callerId,omitempty"`
}

type candidateReq struct {
	CallID       string              `json:"callId" validate:"required"`
	Candidate    jsoniter.RawMessage `json:"candidate"`
	TargetUserID string              `json:"targetUserId,omitempty"`
}

type toggleReq struct {
	CallID       string `json:"callId" validate:"required"`
	Enabled      bool   `json:"enabled"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

type typingReq struct {
	PeerID     string `json:"peerId" validate:"required_without=ReceiverID"`
	ReceiverID string `json:"receiverId,omitempty"`
}

func (r typingReq) peer() string {
	if r.PeerID != "" {
		return r.PeerID
	}
	return r.ReceiverID
}

type messageBody struct {
	Content string `json:"content"`
	Kind    string `json:"messageType"`
}

// UnmarshalJSON accepts both "hello" and {"content":"hello","messageType":"text"}.
func (m *messageBody) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		m.Content = s
		return nil
	}
	type plain messageBody
	return json.Unmarshal(b, (*plain)(m))
}

type sendReq struct {
	ReceiverID string      `json:"receiverId" validate:"required"`
	Message    messageBody `json:"message"`
}

type readReq struct {
	MessageID string `json:"messageId" validate:"required"`
	SenderID  string `json:"senderId,omitempty"`
}

type reactReq struct {
	MessageID  string `json:"messageId" validate:"required"`
	ReceiverID string `json:"receiverId,omitempty"`
	Emoji      string `json:"emoji" validate:"required"`
}
