package events

// Inbound (client -> server).
const (
	Setup           = "setup"
	CallInitiate    = "call:initiate"
	CallAccept      = "call:accept"
	CallReject      = "call:reject"
	CallEnd         = "call:end"
	CallTimeout     = "call:timeout"
	CallConnected   = "call:connected"
	CallToggleVideo = "call:toggle-video"
	CallToggleAudio = "call:toggle-audio"
	WebRTCOffer     = "webrtc:offer"
	WebRTCAnswer    = "webrtc:answer"
	WebRTCCandidate = "webrtc:ice-candidate"
	TypingStart     = "typing:start"
	TypingStop      = "typing:stop"
	MessageSend     = "message:send"
	MessageRead     = "message:read"
	MessageReact    = "message:react"
)

// Outbound (server -> client). Signaling and typing events reuse the
// inbound names above.
const (
	Connected        = "connected"
	UserOnline       = "user:online"
	UserOffline      = "user:offline"
	CallIncoming     = "call:incoming"
	CallInitiated    = "call:initiated"
	CallAccepted     = "call:accepted"
	CallRejected     = "call:rejected"
	CallEnded        = "call:ended"
	CallMissed       = "call:missed"
	CallStatusUpdate = "call:status-update"
	CallError        = "call:error"
	PeerVideoToggle  = "call:peer-video-toggle"
	PeerAudioToggle  = "call:peer-audio-toggle"
	MessageReceive   = "message:receive"
	MessageSent      = "message:sent"
	MessageDelivered = "message:delivered"
	MessageSeen      = "message:seen"
	MessageReaction  = "message:reaction"
	MessageError     = "message:error"
)
