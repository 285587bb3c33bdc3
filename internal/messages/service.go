package messages

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrInvalidMessage = errors.New("messages: invalid message")
	ErrNotFound       = errors.New("messages: not found")
	ErrNotRecipient   = errors.New("messages: user is not the recipient")
)

const maxContentRunes = 4000

// Repository is the persistence contract for chat messages.
type Repository interface {
	Save(ctx context.Context, m Message) error
	Get(ctx context.Context, id string) (Message, error)
	// AdvanceStatus moves the status forward; it never downgrades.
	AdvanceStatus(ctx context.Context, id string, to Status) error
	// UpsertReaction sets userID's reaction, replacing any previous one.
	UpsertReaction(ctx context.Context, id string, r Reaction) error
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Send validates and persists a new message in status sent.
func (s *Service) Send(ctx context.Context, senderID, receiverID, content string, kind Kind) (Message, error) {
	content = strings.TrimSpace(content)
	if senderID == "" || receiverID == "" || senderID == receiverID {
		return Message{}, ErrInvalidMessage
	}
	if content == "" || utf8.RuneCountInString(content) > maxContentRunes {
		return Message{}, ErrInvalidMessage
	}
	switch kind {
	case "":
		kind = KindText
	case KindText, KindImage, KindFile:
	default:
		return Message{}, ErrInvalidMessage
	}

	m := Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Kind:       kind,
		Status:     StatusSent,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.repo.Save(ctx, m); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (s *Service) MarkDelivered(ctx context.Context, id string) error {
	return s.repo.AdvanceStatus(ctx, id, StatusDelivered)
}

// MarkRead records that readerID read the message and returns it so the
// caller can notify the original sender.
func (s *Service) MarkRead(ctx context.Context, id, readerID string) (Message, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if m.ReceiverID != readerID {
		return Message{}, ErrNotRecipient
	}
	if err := s.repo.AdvanceStatus(ctx, id, StatusRead); err != nil {
		return Message{}, err
	}
	m.Status = StatusRead
	return m, nil
}

// React records userID's emoji on a message they sent or received and
// returns the message.
func (s *Service) React(ctx context.Context, id, userID, emoji string) (Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > 16 {
		return Message{}, ErrInvalidMessage
	}
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if userID != m.SenderID && userID != m.ReceiverID {
		return Message{}, ErrNotRecipient
	}
	r := Reaction{UserID: userID, Emoji: emoji, CreatedAt: s.clock().UTC()}
	if err := s.repo.UpsertReaction(ctx, id, r); err != nil {
		return Message{}, err
	}
	return m, nil
}
