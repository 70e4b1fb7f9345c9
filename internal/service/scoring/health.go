// file: internal/service/scoring/health.go
package scoring

import (
	"PluginLens/internal/core/domain"
	"math"
	"strings"
	"time"

	"github.com/Masterminds/semver"
)

// HealthEnv 健康分依赖的外部环境：当前时间与当前平台版本
type HealthEnv struct {
	Now             time.Time
	PlatformVersion string
}

// Health 计算 0-100 的健康分
func Health(rec domain.PluginRecord, weights domain.WeightMap, th domain.Thresholds, env HealthEnv) domain.ScoreBreakdown {
	components := map[string]*float64{
		domain.ComponentUpdateFrequency: updateFrequencyComponent(rec.Version),
		domain.ComponentCompatibility:   compatibilityComponent(rec.TestedUpTo, env.PlatformVersion, th.PrevMajorLastMinor),
		domain.ComponentSupport:         supportComponent(rec, th),
		domain.ComponentRecency:         recencyComponent(rec.LastUpdated, env.Now, th),
		domain.ComponentIssues:          issuesComponent(rec, th),
	}

	b := newBreakdown(components, weights)
	avg, used, ok := compose(components, weights)
	if !ok {
		return b
	}
	b.WeightUsed = used
	b.Composite = ptr(clamp(math.Round(avg*100), 0, 100))
	return b
}

// updateFrequencyComponent 在没有更新历史时，用版本号的粒度近似更新频率：
// 有补丁号说明维护者会发小版本修复。
func updateFrequencyComponent(version string) *float64 {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return ptr(0.5)
	}
	switch {
	case v.Patch() > 0:
		return ptr(1.0)
	case v.Minor() > 0:
		return ptr(0.75)
	default:
		return ptr(0.5)
	}
}

// compatibilityComponent 比较“已测试至”版本与当前平台版本，只看 major.minor。
// 平台为 x.0 时，上一步是 (x-1).prevLastMinor；prevLastMinor 为 0 时不认定跨大版本的“上一步”。
func compatibilityComponent(tested, platform string, prevLastMinor int64) *float64 {
	tested = strings.TrimSpace(tested)
	if tested == "" {
		return nil
	}
	tv, err := semver.NewVersion(tested)
	if err != nil {
		return nil
	}
	pv, err := semver.NewVersion(strings.TrimSpace(platform))
	if err != nil {
		return nil
	}

	tMajor, tMinor := tv.Major(), tv.Minor()
	pMajor, pMinor := pv.Major(), pv.Minor()
	switch {
	case tMajor > pMajor || (tMajor == pMajor && tMinor >= pMinor):
		return ptr(1.0)
	case tMajor == pMajor && tMinor == pMinor-1:
		return ptr(0.8)
	case pMinor == 0 && pMajor > 0 && tMajor == pMajor-1 && prevLastMinor > 0 && tMinor >= prevLastMinor:
		return ptr(0.8)
	default:
		return ptr(0.4)
	}
}

func recencyComponent(last *time.Time, now time.Time, th domain.Thresholds) *float64 {
	if last == nil {
		return nil
	}
	days := int(now.Sub(*last).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return ptr(recencyScore(days, th.RecencyDays, th.FloorScore))
}

// issuesComponent 1-2 星评分占比越高得分越低；没有分布数据时取中性分
func issuesComponent(rec domain.PluginRecord, th domain.Thresholds) *float64 {
	share, known := rec.LowRatingShare()
	if !known {
		return ptr(th.NeutralScore)
	}
	return ptr(clamp(1-share, 0, 1))
}
