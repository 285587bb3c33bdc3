package events

import "encoding/json"

type ConnectedPayload struct {
	ConnectionID string   `json:"connectionId"`
	UserID       string   `json:"userId"`
	OnlineUsers  []string `json:"onlineUsers"`
}

type UserPayload struct {
	UserID string `json:"userId"`
}

type CallIncomingPayload struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
	CallType string `json:"callType"`
}

// CallPayload wraps a full session snapshot.
type CallPayload struct {
	Call any `json:"call"`
}

type CallAcceptedPayload struct {
	CallID     string `json:"callId"`
	AcceptedBy string `json:"acceptedBy"`
}

type CallRejectedPayload struct {
	CallID     string `json:"callId"`
	RejectedBy string `json:"rejectedBy"`
}

type CallEndedPayload struct {
	CallID          string `json:"callId"`
	EndedBy         string `json:"endedBy,omitempty"`
	Duration        string `json:"duration"`
	DurationSeconds int64  `json:"durationSeconds"`
	Reason          string `json:"reason,omitempty"`
}

type CallMissedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

type CallStatusPayload struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
}

// ErrorPayload is carried by call:error and message:error.
type ErrorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// SignalPayload mirrors a negotiation message to the other participant.
// SDP and Candidate are forwarded byte for byte.
type SignalPayload struct {
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type MediaTogglePayload struct {
	CallID  string `json:"callId"`
	UserID  string `json:"userId"`
	Enabled bool   `json:"enabled"`
}

type MessagePayload struct {
	Message any `json:"message"`
}

type MessageRefPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId,omitempty"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}
