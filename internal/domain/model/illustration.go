package model

import (
	"encoding/json"
	"time"
)

type IllustrationStatus string

const (
	IllustrationQueued     IllustrationStatus = "queued"
	IllustrationProcessing IllustrationStatus = "processing"
	IllustrationCompleted  IllustrationStatus = "completed"
	IllustrationFailed     IllustrationStatus = "failed"
)

var illustrationTransitions = map[IllustrationStatus][]IllustrationStatus{
	IllustrationQueued:     {IllustrationProcessing, IllustrationFailed},
	IllustrationProcessing: {IllustrationCompleted, IllustrationFailed},
}

// CanTransition reports whether from -> to moves the record strictly forward.
func (s IllustrationStatus) CanTransition(to IllustrationStatus) bool {
	for _, next := range illustrationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s IllustrationStatus) Terminal() bool {
	return s == IllustrationCompleted || s == IllustrationFailed
}

var SupportedDimensions = []int{1024, 1536, 2048}

func ValidDimension(v int) bool {
	for _, d := range SupportedDimensions {
		if d == v {
			return true
		}
	}
	return false
}

// Illustration is the job record for one image generation request. It also
// holds the result once the worker is done with it.
type Illustration struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	TeamID    *string            `json:"teamId"`
	Prompt    string             `json:"prompt"`
	Style     StyleSelector      `json:"-"`
	StyleName string             `json:"styleName"`
	Status    IllustrationStatus `json:"status"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`

	// CreditsUsed is fixed at creation time.
	CreditsUsed int `json:"creditsUsed"`

	ModelToUse     string `json:"modelToUse,omitempty"`
	ModelUsed      string `json:"modelUsed,omitempty"`
	ImageURL       string `json:"imageURL,omitempty"`
	ThumbnailURL   string `json:"thumbnailURL,omitempty"`
	GenerationTime int    `json:"generationTime,omitempty"`
	FinalPrompt    string `json:"finalPrompt,omitempty"`
	Error          string `json:"error,omitempty"`

	CreatedAt           time.Time  `json:"createdAt"`
	ProcessingStartedAt *time.Time `json:"processingStartedAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	FailedAt            *time.Time `json:"failedAt,omitempty"`
	Version             int64      `json:"version"`
}

// IllustrationPatch carries the fields a transition may set. Nil fields are
// left untouched.
type IllustrationPatch struct {
	ModelToUse          *string
	ModelUsed           *string
	ImageURL            *string
	ThumbnailURL        *string
	GenerationTime      *int
	FinalPrompt         *string
	Error               *string
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
	FailedAt            *time.Time
}

// Apply copies the set fields of p onto il.
func (p IllustrationPatch) Apply(il *Illustration) {
	if p.ModelToUse != nil {
		il.ModelToUse = *p.ModelToUse
	}
	if p.ModelUsed != nil {
		il.ModelUsed = *p.ModelUsed
	}
	if p.ImageURL != nil {
		il.ImageURL = *p.ImageURL
	}
	if p.ThumbnailURL != nil {
		il.ThumbnailURL = *p.ThumbnailURL
	}
	if p.GenerationTime != nil {
		il.GenerationTime = *p.GenerationTime
	}
	if p.FinalPrompt != nil {
		il.FinalPrompt = *p.FinalPrompt
	}
	if p.Error != nil {
		il.Error = *p.Error
	}
	if p.ProcessingStartedAt != nil && il.ProcessingStartedAt == nil {
		il.ProcessingStartedAt = p.ProcessingStartedAt
	}
	if p.CompletedAt != nil && il.CompletedAt == nil {
		il.CompletedAt = p.CompletedAt
	}
	if p.FailedAt != nil && il.FailedAt == nil {
		il.FailedAt = p.FailedAt
	}
}

// illustrationFields drops the methods of Illustration so the JSON codecs
// below can reuse the default encoding.
type illustrationFields Illustration

type illustrationJSON struct {
	illustrationFields
	StyleID   string    `json:"styleId"`
	StyleKind StyleKind `json:"styleKind"`
}

// MarshalJSON writes the style selector as top-level styleId and styleKind,
// the shape clients read from snapshots and change events.
func (il Illustration) MarshalJSON() ([]byte, error) {
	return json.Marshal(illustrationJSON{
		illustrationFields: illustrationFields(il),
		StyleID:            il.Style.ID,
		StyleKind:          il.Style.Kind,
	})
}

func (il *Illustration) UnmarshalJSON(b []byte) error {
	var v illustrationJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*il = Illustration(v.illustrationFields)
	il.Style = StyleSelector{Kind: v.StyleKind, ID: v.StyleID}
	return nil
}

func (il *Illustration) OwnedBy(userID string) bool { return il.UserID == userID }
