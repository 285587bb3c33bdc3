package history

import (
	"time"

	"callhub/internal/calls"
)

// Event is an append-only record of one status a call passed through.
// Rows are never updated or deleted.
type Event struct {
	CallID string       `json:"callId" db:"call_id"`
	Status calls.Status `json:"status" db:"status"`
	At     time.Time    `json:"at" db:"at"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type Page struct {
	Calls      []calls.Session `json:"calls"`
	Pagination Pagination      `json:"pagination"`
}

type Stats struct {
	TotalCalls             int   `json:"totalCalls"`
	VideoCalls             int   `json:"videoCalls"`
	VoiceCalls             int   `json:"voiceCalls"`
	CompletedCalls         int   `json:"completedCalls"`
	MissedCalls            int   `json:"missedCalls"`
	AverageDurationSeconds int64 `json:"averageDurationSeconds"`
}
