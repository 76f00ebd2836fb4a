package tsuzuri

import "context"

// Classifier scores text for moderation. When provided via WithClassifier it
// replaces the classifier selected by TSUZURI_MODERATION_PROVIDER.
//
// Classify returns one score per label. A note is refused when "hate" or
// "offensive" scores above 0.5. Errors never block a write: the gate lets
// the text through and marks the verdict degraded.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]Label, error)
	Name() string
}

// Label is one label/score pair returned by a Classifier.
type Label struct {
	Label string
	Score float64
}
