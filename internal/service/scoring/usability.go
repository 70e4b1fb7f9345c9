// file: internal/service/scoring/usability.go
package scoring

import (
	"PluginLens/internal/core/domain"
)

const (
	usabilityMin = 1.0
	usabilityMax = 5.0
)

// Usability 计算 1.0-5.0 的易用性评分
func Usability(rec domain.PluginRecord, weights domain.WeightMap, th domain.Thresholds) domain.ScoreBreakdown {
	components := map[string]*float64{
		domain.ComponentUserRating:  userRatingComponent(rec),
		domain.ComponentRatingCount: nil,
		domain.ComponentInstalls:    nil,
		domain.ComponentSupport:     supportComponent(rec, th),
	}
	if rec.NumRatings > 0 {
		components[domain.ComponentRatingCount] = ptr(stepScore(rec.NumRatings, th.RatingCount, th.FloorScore))
	}
	if rec.ActiveInstalls > 0 {
		components[domain.ComponentInstalls] = ptr(stepScore(rec.ActiveInstalls, th.Installs, th.FloorScore))
	}

	b := newBreakdown(components, weights)
	avg, used, ok := compose(components, weights)
	if !ok {
		return b
	}
	b.WeightUsed = used
	b.Composite = ptr(clamp(usabilityMin+(usabilityMax-usabilityMin)*avg, usabilityMin, usabilityMax))
	return b
}

func userRatingComponent(rec domain.PluginRecord) *float64 {
	if rec.Rating == nil || *rec.Rating <= 0 {
		return nil
	}
	return ptr(clamp(*rec.Rating/5, 0, 1))
}
