package messages

import "time"

// Message is a persisted direct chat message.
type Message struct {
	ID         string     `json:"id" db:"id"`
	SenderID   string     `json:"senderId" db:"sender_id"`
	ReceiverID string     `json:"receiverId" db:"receiver_id"`
	Content    string     `json:"content" db:"content"`
	Kind       Kind       `json:"messageType" db:"kind"`
	Status     Status     `json:"status" db:"status"`
	Reactions  []Reaction `json:"reactions,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

type Reaction struct {
	UserID    string    `json:"userId" db:"user_id"`
	Emoji     string    `json:"emoji" db:"emoji"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// rank orders statuses so they only move forward.
func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}
