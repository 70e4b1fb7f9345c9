// Package scoring 计算插件的易用性评分 (1-5) 与健康分 (0-100)。
// 所有分项先归一化到 [0,1]，缺失的分项记为 nil 并在综合时按实际参与的权重重新归一化。
// file: internal/service/scoring/composite.go
package scoring

import (
	"PluginLens/internal/core/domain"
	"math"
)

// compose 按权重对非 nil 分项求加权平均。
// 所有分项缺失或参与权重为 0 时返回 ok=false（数据不足）。
func compose(components map[string]*float64, weights domain.WeightMap) (avg float64, used int, ok bool) {
	var sum float64
	for name, v := range components {
		if v == nil {
			continue
		}
		w := weights[name]
		if w <= 0 {
			continue
		}
		sum += float64(w) * *v
		used += w
	}
	if used == 0 {
		return 0, 0, false
	}
	return sum / float64(used), used, true
}

func newBreakdown(components map[string]*float64, weights domain.WeightMap) domain.ScoreBreakdown {
	w := make(map[string]int, len(components))
	for name := range components {
		w[name] = weights[name]
	}
	return domain.ScoreBreakdown{
		Components: components,
		Weights:    w,
	}
}

func ptr(v float64) *float64 { return &v }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// stepScore 按阶梯取分：value >= Min 的第一级，阶梯按 Min 降序排列
func stepScore(value int64, steps []domain.StepThreshold, floor float64) float64 {
	for _, s := range steps {
		if value >= s.Min {
			return s.Score
		}
	}
	return floor
}

// recencyScore 距上次更新天数 <= MaxDays 的第一级，阶梯按 MaxDays 升序排列
func recencyScore(days int, steps []domain.RecencyStep, floor float64) float64 {
	for _, s := range steps {
		if days <= s.MaxDays {
			return s.Score
		}
	}
	return floor
}

// supportComponent 易用性与健康分共用：已解决比例；线程总数为 0 时取中性分；两项都缺失时为 nil
func supportComponent(rec domain.PluginRecord, th domain.Thresholds) *float64 {
	if rec.Support == nil {
		return nil
	}
	if ratio, known := rec.Support.ResolvedRatio(); known {
		return ptr(ratio)
	}
	return ptr(th.NeutralScore)
}
