package notify

import (
	"testing"

	"callhub/internal/events"
)

type captureSender struct {
	online map[string]int
	sent   map[string][]events.Event
}

func newCapture(online map[string]int) *captureSender {
	return &captureSender{online: online, sent: map[string][]events.Event{}}
}

func (c *captureSender) SendToUser(u string, ev events.Event) int {
	n := c.online[u]
	if n > 0 {
		c.sent[u] = append(c.sent[u], ev)
	}
	return n
}

func TestNotifyNewMessageFansOutOrNoops(t *testing.T) {
	out := newCapture(map[string]int{"bob": 2})
	n := New(out, nil)

	if got := n.NotifyNewMessage("bob", map[string]string{"id": "m1"}); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
	if got := n.NotifyNewMessage("carol", "hi"); got != 0 {
		t.Fatalf("expected offline recipient no-op, got %d", got)
	}
	if out.sent["bob"][0].Name != events.MessageReceive {
		t.Fatalf("unexpected event %s", out.sent["bob"][0].Name)
	}
}

func TestForwardReadReceipt(t *testing.T) {
	out := newCapture(map[string]int{"alice": 1})
	New(out, nil).ForwardReadReceipt("m1", "alice", "bob")

	ev := out.sent["alice"][0]
	p := ev.Data.(events.MessageRefPayload)
	if ev.Name != events.MessageSeen || p.MessageID != "m1" || p.UserID != "bob" {
		t.Fatalf("unexpected receipt %+v", ev)
	}
}

func TestNotifyReactionAndDelivered(t *testing.T) {
	out := newCapture(map[string]int{"alice": 1, "bob": 1})
	n := New(out, nil)
	n.NotifyReaction("bob", events.ReactionPayload{MessageID: "m1", UserID: "alice", Emoji: "👍"})
	n.ForwardDelivered("m1", "alice")
	n.EchoSent("alice", "m1")

	if out.sent["bob"][0].Name != events.MessageReaction {
		t.Fatalf("expected reaction for bob")
	}
	if len(out.sent["alice"]) != 2 || out.sent["alice"][0].Name != events.MessageDelivered || out.sent["alice"][1].Name != events.MessageSent {
		t.Fatalf("unexpected sender events %+v", out.sent["alice"])
	}
}
