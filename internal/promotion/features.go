package promotion

import (
	"strings"
	"time"

	"github.com/cortexmem/cortex/internal/types"
)

// ExtractFeatures builds the normalised Promotion Features for one
// record (spec §3). Fields with no independent signal in the CORE's
// data model (session importance, co-occurrence, user preference) are
// derived from the closest available proxy rather than left at zero,
// so scoring still differentiates candidates.
func ExtractFeatures(rec types.Record, now time.Time, keywordSet map[string]struct{}) types.PromotionFeatures {
	age := now.Sub(rec.CreatedAt).Hours()
	recency := recencyScore(rec.LastAccess, now)
	freq := frequencyScore(rec.AccessCount, age)

	return types.PromotionFeatures{
		AgeHours:          age,
		AccessRecency:     recency,
		TemporalPattern:   recency * freq,
		AccessCount:       float64(rec.AccessCount),
		AccessFrequency:   freq,
		SessionImportance: boolScore(rec.Session != ""),
		SemanticImportance: clamp01(rec.Relevance),
		KeywordDensity:    keywordDensity(rec.Payload, keywordSet),
		TopicRelevance:    clamp01(rec.Relevance),
		LayerAffinity:     layerAffinity(rec.Layer),
		CoOccurrence:      boolScore(len(rec.Tags) > 1),
		UserPreference:    boolScore(rec.Project != ""),
	}
}

func recencyScore(lastAccess, now time.Time) float64 {
	if lastAccess.IsZero() {
		return 0
	}
	hoursSince := now.Sub(lastAccess).Hours()
	if hoursSince <= 0 {
		return 1
	}
	// Stepwise decay with a 72h half-life: 1.0 within the first 72h,
	// then halved at each further 72h boundary passed.
	const halfLifeHours = 72.0
	decay := 1.0
	for h := halfLifeHours; h < hoursSince; h += halfLifeHours {
		decay /= 2
	}
	return clamp01(decay)
}

func frequencyScore(accessCount uint32, ageHours float64) float64 {
	if ageHours <= 0 {
		ageHours = 1
	}
	perDay := float64(accessCount) / (ageHours / 24)
	return clamp01(perDay / 10) // 10+ accesses/day saturates to 1.0
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func layerAffinity(l types.Layer) float64 {
	switch l {
	case types.Interact:
		return 0.3
	case types.Insights:
		return 0.6
	default:
		return 1.0
	}
}

// keywordSet builds the lookup set ExtractFeatures/keywordDensity use
// from a layer's configured keyword vocabulary.
func keywordSet(words []string) map[string]struct{} {
	if len(words) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

func keywordDensity(payload string, keywords map[string]struct{}) float64 {
	if len(keywords) == 0 || payload == "" {
		return 0
	}
	words := strings.Fields(strings.ToLower(payload))
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if _, ok := keywords[w]; ok {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(words)))
}
