package types

import "time"

// PromotionFeatures is the normalised feature vector fed to a scoring
// algorithm (spec §3).
type PromotionFeatures struct {
	AgeHours          float64
	AccessRecency     float64 // [0,1]
	TemporalPattern   float64
	AccessCount       float64
	AccessFrequency   float64
	SessionImportance float64
	SemanticImportance float64 // [0,1]
	KeywordDensity    float64
	TopicRelevance    float64
	LayerAffinity     float64
	CoOccurrence      float64
	UserPreference    float64
}

// PromotionDecision records the outcome of scoring one candidate
// record in a promotion tick.
type PromotionDecision struct {
	Record       Record
	CurrentLayer Layer
	TargetLayer  Layer
	Confidence   float64 // [0,1]
	Features     PromotionFeatures
	Timestamp    time.Time
	Algorithm    string
	Reason       string // set by the rules engine; "ok" when applied
}

// ValidTransition reports whether moving from cur to target is a
// forward (or self) move; backwards moves are forbidden.
func ValidTransition(cur, target Layer) bool {
	return target.Rank() >= cur.Rank()
}

// TrainingExample pairs a feature vector with a ground-truth label for
// promotion.Algorithm.Train.
type TrainingExample struct {
	Features PromotionFeatures
	Promoted bool
}
