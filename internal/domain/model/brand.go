package model

import "time"

type BrandStatus string

const (
	BrandPreparing BrandStatus = "preparing"
	BrandQueued    BrandStatus = "queued"
	BrandTraining  BrandStatus = "training"
	BrandReady     BrandStatus = "ready"
	BrandFailed    BrandStatus = "failed"
)

const MinTrainingImages = 10

var brandTransitions = map[BrandStatus][]BrandStatus{
	BrandPreparing: {BrandQueued, BrandFailed},
	BrandQueued:    {BrandTraining, BrandFailed},
	BrandTraining:  {BrandReady, BrandFailed},
}

func (s BrandStatus) CanTransition(to BrandStatus) bool {
	for _, next := range brandTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BrandStatus) Terminal() bool { return s == BrandReady || s == BrandFailed }

type BrandColor struct {
	Hex  string `json:"hex"`
	Name string `json:"name,omitempty"`
}

// Brand is the training job record and, once ready, the trained style that
// generation jobs can reference.
type Brand struct {
	ID               string       `json:"id"`
	UserID           string       `json:"userId"`
	TeamID           *string      `json:"teamId"`
	Name             string       `json:"name"`
	Colors           []BrandColor `json:"colors"`
	Style            string       `json:"style,omitempty"`
	Status           BrandStatus  `json:"status"`
	TrainingImages   []string     `json:"trainingImages,omitempty"`
	ImageCount       int          `json:"imageCount"`
	TrainingJobID    string       `json:"trainingJobId,omitempty"`
	TrainingDataPath string       `json:"trainingDataPath,omitempty"`
	ModelArtifact    string       `json:"loraModelPath,omitempty"`
	TrainingDuration int          `json:"trainingDuration,omitempty"`
	Error            string       `json:"error,omitempty"`

	CreatedAt           time.Time  `json:"createdAt"`
	TrainingStartedAt   *time.Time `json:"trainingStartedAt,omitempty"`
	TrainingCompletedAt *time.Time `json:"trainingCompletedAt,omitempty"`
	FailedAt            *time.Time `json:"failedAt,omitempty"`
	Version             int64      `json:"version"`
}

type BrandPatch struct {
	TrainingJobID       *string
	TrainingDataPath    *string
	ModelArtifact       *string
	TrainingDuration    *int
	Error               *string
	TrainingStartedAt   *time.Time
	TrainingCompletedAt *time.Time
	FailedAt            *time.Time
}

func (p BrandPatch) Apply(b *Brand) {
	if p.TrainingJobID != nil {
		b.TrainingJobID = *p.TrainingJobID
	}
	if p.TrainingDataPath != nil {
		b.TrainingDataPath = *p.TrainingDataPath
	}
	if p.ModelArtifact != nil {
		b.ModelArtifact = *p.ModelArtifact
	}
	if p.TrainingDuration != nil {
		b.TrainingDuration = *p.TrainingDuration
	}
	if p.Error != nil {
		b.Error = *p.Error
	}
	if p.TrainingStartedAt != nil && b.TrainingStartedAt == nil {
		b.TrainingStartedAt = p.TrainingStartedAt
	}
	if p.TrainingCompletedAt != nil && b.TrainingCompletedAt == nil {
		b.TrainingCompletedAt = p.TrainingCompletedAt
	}
	if p.FailedAt != nil && b.FailedAt == nil {
		b.FailedAt = p.FailedAt
	}
}

// Usable reports whether generation jobs may route to this brand's model.
func (b *Brand) Usable() bool {
	return b.Status == BrandReady && b.ModelArtifact != ""
}

// AccessibleBy reports whether the user owns the brand directly or via team.
func (b *Brand) AccessibleBy(userID string, teamID *string) bool {
	if b.UserID == userID {
		return true
	}
	return b.TeamID != nil && teamID != nil && *b.TeamID == *teamID
}

func (b *Brand) ColorHexes() []string {
	out := make([]string, 0, len(b.Colors))
	for _, c := range b.Colors {
		if c.Hex != "" {
			out = append(out, c.Hex)
		}
	}
	return out
}
