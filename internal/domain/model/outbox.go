package model

import "time"

const (
	TopicGeneration = "image-generation-jobs"
	TopicTraining   = "brand-training-jobs"
)

// JobMessage is the queue payload. The worker re-reads the job record, so the
// message only needs to identify it; the remaining fields are informational.
type JobMessage struct {
	Kind           JobKind `json:"kind"`
	IllustrationID string  `json:"illustrationId,omitempty"`
	BrandID        string  `json:"brandId,omitempty"`
	UserID         string  `json:"userId"`
	StyleID        string  `json:"styleId,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	ImageCount     int     `json:"imageCount,omitempty"`
	CreatedAt      string  `json:"createdAt"`
}

func (m JobMessage) JobID() string {
	if m.Kind == JobKindTraining {
		return m.BrandID
	}
	return m.IllustrationID
}

func TopicFor(kind JobKind) string {
	if kind == JobKindTraining {
		return TopicTraining
	}
	return TopicGeneration
}

// OutboxMessage is written in the same transaction as the job record and
// relayed to the queue after commit.
type OutboxMessage struct {
	ID           string
	Topic        string
	JobID        string
	Payload      []byte
	CreatedAt    time.Time
	DispatchedAt *time.Time
	Attempts     int
	LastError    string
}
