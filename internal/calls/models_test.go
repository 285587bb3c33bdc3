package calls

import (
	"errors"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                     "0:00",
		9 * time.Second:                       "0:09",
		65 * time.Second:                      "1:05",
		65*time.Second + 900*time.Millisecond: "1:05",
		61 * time.Minute:                      "61:00",
		-time.Second:                          "0:00",
	}
	for d, want := range cases {
		if got := FormatDuration(d); got != want {
			t.Fatalf("FormatDuration(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestParseCallTypeDefaultsToVideo(t *testing.T) {
	if ct, err := ParseCallType(""); err != nil || ct != CallTypeVideo {
		t.Fatalf("expected video default, got %q %v", ct, err)
	}
	if ct, err := ParseCallType("Voice"); err != nil || ct != CallTypeVoice {
		t.Fatalf("expected voice, got %q %v", ct, err)
	}
	if _, err := ParseCallType("hologram"); !errors.Is(err, ErrInvalidCallType) {
		t.Fatalf("expected ErrInvalidCallType, got %v", err)
	}
}

func TestParseQuality(t *testing.T) {
	if q, err := ParseQuality("good"); err != nil || q != QualityGood {
		t.Fatalf("expected good, got %q %v", q, err)
	}
	if _, err := ParseQuality("great"); !errors.Is(err, ErrInvalidQuality) {
		t.Fatalf("expected ErrInvalidQuality, got %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAccepted, StatusOngoing} {
		if !s.Active() || s.Terminal() {
			t.Fatalf("%s should be active", s)
		}
	}
	for _, s := range []Status{StatusRejected, StatusEnded, StatusMissed} {
		if s.Active() || !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}

func TestNewCallIDAndPeer(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	if got := NewCallID("alice", "bob", at); got != "alice-bob-1700000000123" {
		t.Fatalf("unexpected call id %q", got)
	}
	s := Session{CallerID: "alice", ReceiverID: "bob"}
	if s.Peer("alice") != "bob" || s.Peer("bob") != "alice" || s.Peer("carol") != "" {
		t.Fatalf("unexpected peers")
	}
	if s.IsParticipant("") || !s.IsParticipant("bob") {
		t.Fatalf("unexpected participant check")
	}
}

func TestBusyErrorMatchesSentinel(t *testing.T) {
	var err error = &BusyError{UserID: "bob"}
	if !errors.Is(err, ErrUserBusy) {
		t.Fatalf("expected BusyError to match ErrUserBusy")
	}
}
