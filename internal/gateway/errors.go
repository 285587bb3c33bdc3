package gateway

import (
	"errors"
	"strings"

	"callhub/internal/calls"
	"callhub/internal/events"
	"callhub/internal/messages"
	"callhub/internal/registry"
	"callhub/internal/signaling"
)

// Wire error types carried in call:error / message:error.
const (
	TypeAuthError          = "AuthError"
	TypeUserBusy           = "UserBusy"
	TypeUserNotFound       = "UserNotFound"
	TypeSelfCallNotAllowed = "SelfCallNotAllowed"
	TypeInvalidTransition  = "InvalidTransition"
	TypeUnauthorized       = "Unauthorized"
	TypeSessionNotActive   = "SessionNotActive"
	TypeNotFound           = "NotFound"
	TypeBadRequest         = "BadRequest"
	TypeInternalError      = "InternalError"
)

var errIdentityMismatch = errors.New("gateway: identity does not match connection")

type errorClass struct {
	target error
	kind   string
	msg    string
}

var errorClasses = []errorClass{
	{registry.ErrAuth, TypeAuthError, "Authentication failed"},
	{calls.ErrUserBusy, TypeUserBusy, "User is busy in another call"},
	{calls.ErrUserNotFound, TypeUserNotFound, "User not found"},
	{calls.ErrSelfCall, TypeSelfCallNotAllowed, "You cannot call yourself"},
	{calls.ErrInvalidTransition, TypeInvalidTransition, "Call is no longer in a state that allows this action"},
	{calls.ErrUnauthorized, TypeUnauthorized, "Not a participant of this call"},
	{messages.ErrNotRecipient, TypeUnauthorized, "Not allowed to act on this message"},
	{errIdentityMismatch, TypeUnauthorized, "Identity does not match this connection"},
	{signaling.ErrSessionNotActive, TypeSessionNotActive, "Call session is not active"},
	{calls.ErrNotFound, TypeNotFound, "Call not found"},
	{messages.ErrNotFound, TypeNotFound, "Message not found"},
	{calls.ErrInvalidCallType, TypeBadRequest, "Call type must be voice or video"},
	{calls.ErrInvalidReason, TypeBadRequest, "Unsupported end reason"},
	{signaling.ErrEmptyPayload, TypeBadRequest, "Signaling payload is empty"},
	{signaling.ErrInvalidMedia, TypeBadRequest, "Media kind must be audio or video"},
	{messages.ErrInvalidMessage, TypeBadRequest, "Invalid message"},
	{errBadPayload, TypeBadRequest, "Malformed payload"},
}

// classify maps an error to its wire type and a client-safe message.
func classify(err error) (kind, msg string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.kind, c.msg
		}
	}
	return TypeInternalError, "Internal error"
}

// errorEvent picks message:error for chat and typing events, call:error otherwise.
func errorEvent(inbound string, err error) events.Event {
	kind, msg := classify(err)
	name := events.CallError
	if strings.HasPrefix(inbound, "message:") || strings.HasPrefix(inbound, "typing:") {
		name = events.MessageError
	}
	return events.New(name, events.ErrorPayload{Message: msg, Type: kind})
}
