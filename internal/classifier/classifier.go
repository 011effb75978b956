// Package classifier defines the content judgment capability the processor depends on.
package classifier

import (
	"context"
)

// Input is the normalized candidate handed to a classifier
type Input struct {
	Text     string
	ImageURL string
	VideoURL string
	Metadata map[string]string
}

// HasMedia reports whether the input references an image or video
func (in Input) HasMedia() bool {
	return in.ImageURL != "" || in.VideoURL != ""
}

// Judgment is a classifier's verdict on one candidate
type Judgment struct {
	IsValid         bool     `json:"is_valid"`
	IsSpam          bool     `json:"is_spam"`
	IsInappropriate bool     `json:"is_inappropriate"`
	IsUnrelated     bool     `json:"is_unrelated"`
	Confidence      float64  `json:"confidence"`
	FlaggedPatterns []string `json:"flagged_patterns"`
	Notes           string   `json:"notes"`
}

// Classifier judges whether content is on-topic, clean and worth queueing
type Classifier interface {
	Classify(ctx context.Context, in Input) (*Judgment, error)
}

// ClampConfidence keeps a score inside [0, 1]
func ClampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
