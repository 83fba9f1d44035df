// Package promotion implements the Promotion Engine and Rules Engine
// (spec §4.6/§4.7): candidate selection, feature extraction, pluggable
// scoring, rules filtering, and transactional apply.
package promotion

import (
	"fmt"
	"strings"
	"time"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/types"
)

// TimeWindow tunes the confidence-threshold multiplier for a window of
// the day (spec §4.7: "time-window multiplier adjusts the effective
// confidence threshold").
type TimeWindow struct {
	StartHour, EndHour int // [0,24), EndHour exclusive; wraps if End < Start
	Multiplier         float64
}

func (w TimeWindow) contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// RulesConfig carries the business-rule knobs from spec §4.7 that
// aren't already part of config.PromotionConfig.
type RulesConfig struct {
	MaxPromotionsPerRecordPerDay int
	MinRepromotionInterval       time.Duration
	GlobalRateCapPerHour         int
	InteractMinShare             float64 // e.g. 0.60
	AssetsMaxShare               float64 // e.g. 0.10
	NoDuplicateContent           bool
	MaxSystemLoad                float64
	Windows                      []TimeWindow
}

// DefaultRulesConfig mirrors the scenario in spec §8 (min_access_count
// etc. live in config.PromotionConfig.PerLayer; these are the extra
// business-rule knobs).
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		MaxPromotionsPerRecordPerDay: 3,
		MinRepromotionInterval:       time.Hour,
		GlobalRateCapPerHour:         1000,
		InteractMinShare:             0.60,
		AssetsMaxShare:               0.10,
		MaxSystemLoad:                0.90,
	}
}

// CorpusShares is the current distribution of records across layers,
// needed for the layer-balance business rule.
type CorpusShares struct {
	Total           int
	InteractCount   int
	AssetsCount     int
}

func (s CorpusShares) interactShare() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.InteractCount) / float64(s.Total)
}

func (s CorpusShares) assetsShare() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.AssetsCount) / float64(s.Total)
}

// History is the per-record promotion history needed by the rules
// engine's repromotion checks.
type History struct {
	PromotionsToday   int
	LastPromotionTime time.Time
}

// SystemState carries ambient conditions the rules engine checks
// against (spec §4.7 "system conditions").
type SystemState struct {
	Now             time.Time
	Load            float64 // [0,1]
	PromotionsThisHour int
	Shares          CorpusShares
}

// Decision is the rules engine's pass/fail verdict plus a reason
// string suitable for logging and testing (spec §4.7).
type Decision struct {
	Allowed             bool
	Reason              string
	ThresholdMultiplier float64
}

// Evaluate runs the ordered predicate chain from spec §4.7 against one
// candidate record and its extracted features/confidence.
func Evaluate(
	pcfg config.PromotionConfig,
	rcfg RulesConfig,
	rec types.Record,
	confidence float64,
	hist History,
	sys SystemState,
) Decision {
	layerCfg, hasLayerCfg := pcfg.PerLayer[rec.Layer.String()]

	residence := rec.ResidenceTime(sys.Now)
	if hasLayerCfg && residence < minResidence(layerCfg) {
		return Decision{Reason: fmt.Sprintf("residence time %s below minimum", residence)}
	}
	if hasLayerCfg {
		if int(rec.AccessCount) < layerCfg.MinAccessCount {
			return Decision{Reason: fmt.Sprintf("access_count %d below min_access_count %d", rec.AccessCount, layerCfg.MinAccessCount)}
		}
		if confidence < layerCfg.MinConfidenceScore {
			return Decision{Reason: fmt.Sprintf("confidence %.3f below min_confidence_score %.3f", confidence, layerCfg.MinConfidenceScore)}
		}
		ageHours := sys.Now.Sub(rec.CreatedAt).Hours()
		if layerCfg.MaxAgeHours > 0 && ageHours > layerCfg.MaxAgeHours {
			return Decision{Reason: fmt.Sprintf("age %.1fh exceeds max_age_hours %.1f", ageHours, layerCfg.MaxAgeHours)}
		}
		if len(layerCfg.RequiredKeywords) > 0 && !containsAnyKeyword(rec.Payload, layerCfg.RequiredKeywords) {
			return Decision{Reason: "payload missing a required keyword"}
		}
		if len(layerCfg.BlacklistKeywords) > 0 && containsAnyKeyword(rec.Payload, layerCfg.BlacklistKeywords) {
			return Decision{Reason: "payload contains a blacklisted keyword"}
		}
	}

	if rcfg.MaxPromotionsPerRecordPerDay > 0 && hist.PromotionsToday >= rcfg.MaxPromotionsPerRecordPerDay {
		return Decision{Reason: "max_promotions_per_record_per_day exceeded"}
	}
	if rcfg.MinRepromotionInterval > 0 && !hist.LastPromotionTime.IsZero() {
		if sys.Now.Sub(hist.LastPromotionTime) < rcfg.MinRepromotionInterval {
			return Decision{Reason: "within min_repromotion_interval of previous promotion"}
		}
	}

	if rcfg.GlobalRateCapPerHour > 0 && sys.PromotionsThisHour >= rcfg.GlobalRateCapPerHour {
		return Decision{Reason: "global promotion rate cap reached"}
	}
	if rcfg.InteractMinShare > 0 && sys.Shares.interactShare() < rcfg.InteractMinShare && rec.Layer == types.Interact {
		return Decision{Reason: "promoting would push interact layer below min share"}
	}
	if rcfg.AssetsMaxShare > 0 && sys.Shares.assetsShare() >= rcfg.AssetsMaxShare {
		return Decision{Reason: "assets layer at max share"}
	}

	if rcfg.MaxSystemLoad > 0 && sys.Load > rcfg.MaxSystemLoad {
		return Decision{Reason: fmt.Sprintf("system load %.2f exceeds ceiling %.2f", sys.Load, rcfg.MaxSystemLoad)}
	}

	mult := 1.0
	for _, w := range rcfg.Windows {
		if w.contains(sys.Now.Hour()) {
			mult = w.Multiplier
			break
		}
	}

	return Decision{Allowed: true, Reason: "ok", ThresholdMultiplier: mult}
}

func minResidence(l config.PromotionLayerConfig) time.Duration {
	return l.MinResidence
}

// containsAnyKeyword reports whether payload contains (case-insensitive)
// any of the given keywords.
func containsAnyKeyword(payload string, keywords []string) bool {
	lower := strings.ToLower(payload)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
