// Package notify pushes already-persisted chat events to recipients' live
// connections. It never persists anything.
package notify

import (
	"log/slog"

	"callhub/internal/events"
)

// Sender pushes events to every live connection of a user.
type Sender interface {
	SendToUser(userID string, ev events.Event) int
}

type Notifier struct {
	sender Sender
	log    *slog.Logger
}

func New(sender Sender, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{sender: sender, log: log}
}

// NotifyNewMessage delivers message:receive and returns how many of the
// recipient's connections got it. Zero means the message waits for sync.
func (n *Notifier) NotifyNewMessage(recipientID string, message any) int {
	delivered := n.sender.SendToUser(recipientID, events.New(events.MessageReceive, events.MessagePayload{Message: message}))
	if delivered == 0 {
		n.log.Debug("recipient offline, message left for sync", "recipient_id", recipientID)
	}
	return delivered
}

// EchoSent confirms persistence to the sender's devices.
func (n *Notifier) EchoSent(senderID string, message any) int {
	return n.sender.SendToUser(senderID, events.New(events.MessageSent, events.MessagePayload{Message: message}))
}

func (n *Notifier) NotifyReaction(recipientID string, r events.ReactionPayload) int {
	return n.sender.SendToUser(recipientID, events.New(events.MessageReaction, r))
}

// ForwardDelivered tells the sender that the message reached a recipient device.
func (n *Notifier) ForwardDelivered(messageID, senderID string) int {
	return n.sender.SendToUser(senderID, events.New(events.MessageDelivered, events.MessageRefPayload{MessageID: messageID}))
}

// ForwardReadReceipt tells the original sender that readerUserID saw the message.
func (n *Notifier) ForwardReadReceipt(messageID, senderID, readerUserID string) int {
	return n.sender.SendToUser(senderID, events.New(events.MessageSeen, events.MessageRefPayload{
		MessageID: messageID,
		UserID:    readerUserID,
	}))
}
