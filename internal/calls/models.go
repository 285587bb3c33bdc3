package calls

import (
	"fmt"
	"strings"
	"time"
)

// Session is one voice/video call attempt between exactly two users.
//
// Invariant: a user participates in at most one session whose Status is
// Active(); the store enforces this through its busy index.
type Session struct {
	CallID     string   `json:"callId"`
	CallerID   string   `json:"callerId"`
	ReceiverID string   `json:"receiverId"`
	CallType   CallType `json:"callType"`
	Status     Status   `json:"status"`

	CreatedAt  time.Time  `json:"createdAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`

	MissedReason    MissedReason `json:"missedReason,omitempty"`
	EndedBy         string       `json:"endedBy,omitempty"`
	Duration        string       `json:"duration,omitempty"`
	DurationSeconds int64        `json:"durationSeconds"`
	Quality         Quality      `json:"quality,omitempty"`
}

func (s Session) IsParticipant(userID string) bool {
	return userID != "" && (userID == s.CallerID || userID == s.ReceiverID)
}

// Peer returns the other participant, or "" if userID is not one.
func (s Session) Peer(userID string) string {
	switch userID {
	case s.CallerID:
		return s.ReceiverID
	case s.ReceiverID:
		return s.CallerID
	default:
		return ""
	}
}

func (s Session) Participants() []string {
	return []string{s.CallerID, s.ReceiverID}
}

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// ParseCallType defaults an empty value to video.
func ParseCallType(raw string) (CallType, error) {
	switch CallType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CallTypeVideo:
		return CallTypeVideo, nil
	case CallTypeVoice:
		return CallTypeVoice, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCallType, raw)
	}
}

func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusOngoing  Status = "ongoing"
	StatusEnded    Status = "ended"
	StatusMissed   Status = "missed"
)

// Active reports whether the session still holds both participants busy.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusOngoing:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusEnded, StatusMissed:
		return true
	default:
		return false
	}
}

type MissedReason string

const (
	ReasonNoAnswer         MissedReason = "no_answer"
	ReasonBusy             MissedReason = "busy"
	ReasonDeclined         MissedReason = "declined"
	ReasonNetworkError     MissedReason = "network_error"
	ReasonUserDisconnected MissedReason = "user_disconnected"
)

type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

func ParseQuality(raw string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(raw))); q {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return q, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidQuality, raw)
	}
}

// NewCallID derives a readable id from the participants and creation time.
func NewCallID(callerID, receiverID string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", callerID, receiverID, at.UnixMilli())
}

// FormatDuration renders talk time as m:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// talkTime is endedAt - acceptedAt, zero when the call was never accepted.
func talkTime(s Session, endedAt time.Time) time.Duration {
	if s.AcceptedAt == nil {
		return 0
	}
	d := endedAt.Sub(*s.AcceptedAt)
	if d < 0 {
		return 0
	}
	return d
}
